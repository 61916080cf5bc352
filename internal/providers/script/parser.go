// Package script turns free-text scripts into scenes with a chat model.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/rs/zerolog"

	"scenegen/internal/domain"
)

const (
	// DefaultModel is the xAI chat model.
	DefaultModel = "grok-3"

	temperature = 0.3
	maxTokens   = 2000
)

// ChatCompleter sends one user message and returns the reply text.
type ChatCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Parser breaks a script into scenes. It never retries: a malformed reply is
// reported to the caller as domain.ErrModelResponse.
type Parser struct {
	chat   ChatCompleter
	logger zerolog.Logger
}

// NewParser builds a Parser. A nil logger disables logging.
func NewParser(chat ChatCompleter, logger *zerolog.Logger) *Parser {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Parser{chat: chat, logger: l}
}

// Parse returns the scenes described by script. Scenes come back without a
// style; the caller attaches one.
func (p *Parser) Parse(ctx context.Context, script, style string) ([]domain.Scene, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("%w: script is empty", domain.ErrConfiguration)
	}
	if p == nil || p.chat == nil {
		return nil, fmt.Errorf("%w: chat client not configured", domain.ErrConfiguration)
	}
	reply, err := p.chat.Complete(ctx, BuildInstruction(script, domain.NormalizeStyle(style)))
	if err != nil {
		return nil, fmt.Errorf("script: chat completion: %w", err)
	}
	parsed, err := ParseScenes(reply)
	if err != nil {
		p.logger.Error().Err(err).Str("reply", truncate(reply, 500)).Msg("script: failed to parse model reply")
		return nil, err
	}
	p.logger.Info().Int("scenes", len(parsed)).Msg("script: parsed scenes")
	return parsed, nil
}

// BuildInstruction renders the fixed instruction sent to the chat model.
func BuildInstruction(script, style string) string {
	sb := &strings.Builder{}
	sb.WriteString("You are a video production assistant. Analyze this script and break it down into individual scenes for image generation.\n\n")
	sb.WriteString("SCRIPT:\n")
	sb.WriteString(script)
	sb.WriteString("\n\nINSTRUCTIONS:\n")
	sb.WriteString("1. Break the script into 3-8 logical scenes that would work well for a video\n")
	sb.WriteString("2. For each scene, determine if it should be \"animated\" (movement/action) or \"static\" (still moment)\n")
	sb.WriteString("3. Identify any props or objects that should be visible in each scene\n")
	sb.WriteString("4. Keep scene descriptions concise but descriptive\n\n")
	sb.WriteString("OUTPUT FORMAT: Return ONLY a valid JSON array of objects with this exact structure:\n")
	sb.WriteString("[\n  {\n    \"scene_number\": 1,\n    \"script_line\": \"Brief description of what happens in this scene\",\n")
	sb.WriteString("    \"scene_type\": \"animated\" or \"static\",\n    \"props\": [\"prop1\", \"prop2\"] (empty array if no props)\n  }\n]\n\n")
	fmt.Fprintf(sb, "Make sure the scene descriptions will work well for AI image generation in a %s style.", style)
	return sb.String()
}

// OpenAIChat implements ChatCompleter with an OpenAI-compatible client.
type OpenAIChat struct {
	client openai.Client
	model  string
}

// NewOpenAIChat wraps client. An empty model selects DefaultModel.
func NewOpenAIChat(client openai.Client, model string) *OpenAIChat {
	return &OpenAIChat{client: client, model: coalesce(model, DefaultModel)}
}

// Complete sends prompt as a single user message.
func (c *OpenAIChat) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty choices in chat response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
