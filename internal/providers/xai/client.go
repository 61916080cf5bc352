// Package xai wires the OpenAI-compatible xAI endpoints into the pipeline.
package xai

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"scenegen/internal/domain"
	"scenegen/internal/infra"
	"scenegen/internal/pipeline"
	"scenegen/internal/providers/image"
	"scenegen/internal/providers/script"
)

// DefaultBaseURL is the xAI API root.
const DefaultBaseURL = "https://api.x.ai/v1"

// ErrMissingAPIKey indicates neither the request nor the environment carried a key.
var ErrMissingAPIKey = fmt.Errorf("%w: xai api key is required", domain.ErrConfiguration)

// Options configures the client factory.
type Options struct {
	// APIKey is used when a request does not carry its own key.
	APIKey     string
	BaseURL    string
	ChatModel  string
	ImageModel string
	HTTPClient *http.Client
	Timeout    time.Duration
	// RatePerMinute caps image requests across all jobs; zero disables the limiter.
	RatePerMinute int
	Logger        *infra.Logger
}

// Factory builds per-credential chat and image clients.
type Factory struct {
	apiKey     string
	baseURL    string
	chatModel  string
	imageModel string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

// NewFactory applies defaults and returns a Factory.
func NewFactory(opts Options) *Factory {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1)
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Factory{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    base,
		chatModel:  opts.ChatModel,
		imageModel: opts.ImageModel,
		httpClient: client,
		limiter:    limiter,
		logger:     logger,
	}
}

// Clients returns a script parser and image generator authenticated with
// apiKey, or with the configured default key when apiKey is empty.
func (f *Factory) Clients(apiKey string) (pipeline.ScriptParser, pipeline.ImageGenerator, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = f.apiKey
	}
	if key == "" {
		return nil, nil, ErrMissingAPIKey
	}
	client := f.NewClient(key)
	parser := script.NewParser(script.NewOpenAIChat(client, f.chatModel), f.logger)
	generator := image.NewGenerator(image.Options{
		API:        image.NewOpenAIImages(client, f.imageModel),
		HTTPClient: f.httpClient,
		Limiter:    f.limiter,
		Logger:     f.logger,
	})
	return parser, generator, nil
}

// NewClient returns an OpenAI SDK client for the xAI endpoint. SDK retries
// are disabled; image retries are owned by image.Generator.
func (f *Factory) NewClient(apiKey string) openai.Client {
	return openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(f.baseURL),
		option.WithHTTPClient(f.httpClient),
		option.WithMaxRetries(0),
	)
}

var _ pipeline.ClientFactory = (*Factory)(nil)
