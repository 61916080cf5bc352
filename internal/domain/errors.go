package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrModelResponse     = errors.New("unparseable model response")
	ErrTemplate          = errors.New("invalid template")
	ErrImageGeneration   = errors.New("image generation failed")
	ErrConfiguration     = errors.New("invalid configuration")
)
