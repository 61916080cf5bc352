package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"scenegen/internal/domain"
)

// Options configures a Generator.
type Options struct {
	API        API
	HTTPClient *http.Client
	Timeout    time.Duration
	// Limiter throttles every attempt, shared across jobs using the same key.
	Limiter *rate.Limiter
	Sleep   func(ctx context.Context, d time.Duration) error
	Logger  *zerolog.Logger
}

// Generator turns prompts into image bytes with bounded retries.
type Generator struct {
	api        API
	httpClient *http.Client
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
	logger     zerolog.Logger
}

// NewGenerator builds a Generator, applying defaults for unset options.
func NewGenerator(opts Options) *Generator {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Generator{
		api:        opts.API,
		httpClient: client,
		limiter:    opts.Limiter,
		sleep:      sleep,
		logger:     logger,
	}
}

// Generate produces the image for prompt. An invalid mode fails before any
// request is made; any other failure is retried per policy and surfaces as a
// *GenerationError once attempts are exhausted.
func (g *Generator) Generate(ctx context.Context, prompt string, mode Mode, policy RetryPolicy) (Result, error) {
	if !mode.Valid() {
		return Result{}, fmt.Errorf("%w: unsupported image response mode %q", domain.ErrConfiguration, mode)
	}
	if g == nil || g.api == nil {
		return Result{}, fmt.Errorf("%w: image api not configured", domain.ErrConfiguration)
	}

	maxAttempts := policy.attempts()
	schedule := policy.BackOff(ctx)
	var lastErr error
	attempts := 0
	for {
		attempts++
		data, err := g.attempt(ctx, prompt, mode)
		if err == nil {
			return Result{Data: data, Attempts: attempts}, nil
		}
		lastErr = err
		g.logger.Warn().Err(err).
			Int("attempt", attempts).
			Int("max_attempts", maxAttempts).
			Msg("image: attempt failed")
		delay := schedule.NextBackOff()
		if delay == backoff.Stop {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(lastErr, ctxErr) {
				lastErr = errors.Join(lastErr, ctxErr)
			}
			break
		}
		if err := g.sleep(ctx, delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}
	return Result{Attempts: attempts}, &GenerationError{Attempts: attempts, Err: lastErr}
}

func (g *Generator) attempt(ctx context.Context, prompt string, mode Mode) ([]byte, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("image: rate limiter: %w", err)
		}
	}
	payload, err := g.api.Create(ctx, prompt, mode)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeInline:
		return decodeInline(payload.B64JSON)
	default:
		return g.download(ctx, payload.URL)
	}
}

func decodeInline(b64 string) ([]byte, error) {
	b64 = strings.TrimSpace(b64)
	if b64 == "" {
		return nil, errors.New("image: empty b64_json payload")
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("image: decode b64_json: %w", err)
	}
	return data, nil
}

func (g *Generator) download(ctx context.Context, imageURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, fmt.Errorf("image: invalid image url: %q", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("image: build download request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("image: read image: %w", err)
	}
	return data, nil
}
