package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"scenegen/internal/domain"
	"scenegen/internal/scenes"
)

// ExtractArray returns the substring from the first '[' to the last ']' of
// a model reply. The model may surround the array with prose or code fences.
func ExtractArray(reply string) (string, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON array found in reply", domain.ErrModelResponse)
	}
	return reply[start : end+1], nil
}

// ParseScenes extracts and decodes the scene array from a model reply.
func ParseScenes(reply string) ([]domain.Scene, error) {
	fragment, err := ExtractArray(reply)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(fragment)) {
		return nil, fmt.Errorf("%w: extracted array is not valid JSON", domain.ErrModelResponse)
	}
	parsed, err := scenes.DecodeRecords([]byte(fragment))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelResponse, err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%w: reply contained no scenes", domain.ErrModelResponse)
	}
	if err := scenes.CheckUnique(parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelResponse, err)
	}
	return parsed, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
