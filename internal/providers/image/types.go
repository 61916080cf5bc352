package image

import (
	"context"
	"fmt"
	"strings"

	"scenegen/internal/domain"
)

// Mode selects how the generation endpoint returns the image.
type Mode string

const (
	ModeInline Mode = "inline-encoded"
	ModeURL    Mode = "remote-url"
)

// Valid reports whether m is one of the supported response modes.
func (m Mode) Valid() bool {
	return m == ModeInline || m == ModeURL
}

// ParseMode accepts the canonical mode names as well as the short
// spellings used on the command line (base64, b64_json, url). Empty input
// selects ModeInline.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "base64", "b64_json", string(ModeInline):
		return ModeInline, nil
	case "url", string(ModeURL):
		return ModeURL, nil
	default:
		return "", fmt.Errorf("%w: unsupported image format %q", domain.ErrConfiguration, raw)
	}
}

// Payload is the body of one generation response. Exactly one field is set
// depending on the requested mode.
type Payload struct {
	B64JSON string
	URL     string
}

// API issues a single image generation request.
type API interface {
	Create(ctx context.Context, prompt string, mode Mode) (Payload, error)
}

// Result is a successful generation.
type Result struct {
	Data     []byte
	Attempts int
}

// GenerationError is returned once every attempt has failed.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("image generation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is matches domain.ErrImageGeneration.
func (e *GenerationError) Is(target error) bool {
	return target == domain.ErrImageGeneration
}
