package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
)

// DefaultModel is the xAI image model.
const DefaultModel = "grok-2-image"

// OpenAIImages implements API against an OpenAI-compatible images endpoint.
type OpenAIImages struct {
	client openai.Client
	model  string
}

// NewOpenAIImages wraps client. An empty model selects DefaultModel.
func NewOpenAIImages(client openai.Client, model string) *OpenAIImages {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIImages{client: client, model: model}
}

// Create requests a single image in the encoding selected by mode.
func (o *OpenAIImages) Create(ctx context.Context, prompt string, mode Mode) (Payload, error) {
	format := openai.ImageGenerateParamsResponseFormatB64JSON
	if mode == ModeURL {
		format = openai.ImageGenerateParamsResponseFormatURL
	}
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(o.model),
		N:              openai.Int(1),
		ResponseFormat: format,
	})
	if err != nil {
		return Payload{}, fmt.Errorf("image: generate: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return Payload{}, errors.New("image: empty response")
	}
	return Payload{B64JSON: resp.Data[0].B64JSON, URL: resp.Data[0].URL}, nil
}
