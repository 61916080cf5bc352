package xai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"scenegen/internal/domain"
	"scenegen/internal/providers/image"
)

func TestClientsRequiresKey(t *testing.T) {
	f := NewFactory(Options{})
	if _, _, err := f.Clients(""); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Clients error = %v, want ErrConfiguration", err)
	}
}

func TestClientsFallsBackToDefaultKey(t *testing.T) {
	var auth atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "c1", "object": "chat.completion", "created": 1, "model": "grok-3",
				"choices": []map[string]any{{
					"index": 0, "finish_reason": "stop",
					"message": map[string]any{"role": "assistant", "content": `Scenes: [{"scene_number":1,"script_line":"a","scene_type":"static","props":[]}]`},
				}},
			})
		case strings.HasSuffix(r.URL.Path, "/images/generations"):
			_, _ = w.Write([]byte(`{"created":1,"data":[{"b64_json":"cG5n"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	f := NewFactory(Options{APIKey: "env-key", BaseURL: ts.URL + "/", HTTPClient: ts.Client()})
	parser, generator, err := f.Clients("  ")
	if err != nil {
		t.Fatalf("Clients returned error: %v", err)
	}
	scenes, err := parser.Parse(context.Background(), "a script", "cartoon")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(scenes) != 1 || scenes[0].ScriptLine != "a" {
		t.Fatalf("scenes = %+v", scenes)
	}
	res, err := generator.Generate(context.Background(), "prompt", image.ModeInline, image.DefaultRetryPolicy())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if string(res.Data) != "png" {
		t.Fatalf("data = %q", res.Data)
	}
	if got := auth.Load(); got != "Bearer env-key" {
		t.Fatalf("authorization = %v", got)
	}
}
