package image

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"scenegen/internal/domain"
)

type stubResponse struct {
	payload Payload
	err     error
}

type stubAPI struct {
	queue []stubResponse
	calls int
	modes []Mode
}

func (s *stubAPI) Create(ctx context.Context, prompt string, mode Mode) (Payload, error) {
	s.calls++
	s.modes = append(s.modes, mode)
	if len(s.queue) == 0 {
		return Payload{}, errors.New("no response queued")
	}
	next := s.queue[0]
	if len(s.queue) > 1 {
		s.queue = s.queue[1:]
	}
	return next.payload, next.err
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func inline(data string) stubResponse {
	return stubResponse{payload: Payload{B64JSON: base64.StdEncoding.EncodeToString([]byte(data))}}
}

var errUpstream = errors.New("upstream unavailable")

func failure() stubResponse {
	return stubResponse{err: errUpstream}
}

func TestGenerateSucceedsAfterFailures(t *testing.T) {
	api := &stubAPI{queue: []stubResponse{failure(), failure(), inline("png-bytes")}}
	rec := &sleepRecorder{}
	gen := NewGenerator(Options{API: api, Sleep: rec.sleep})

	res, err := gen.Generate(context.Background(), "a cat", ModeInline, RetryPolicy{MaxAttempts: 4, Unit: time.Second})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if string(res.Data) != "png-bytes" {
		t.Fatalf("data = %q", res.Data)
	}
	if res.Attempts != 3 || api.calls != 3 {
		t.Fatalf("attempts = %d, calls = %d, want 3", res.Attempts, api.calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if !reflect.DeepEqual(rec.delays, want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	api := &stubAPI{queue: []stubResponse{failure()}}
	rec := &sleepRecorder{}
	gen := NewGenerator(Options{API: api, Sleep: rec.sleep})

	_, err := gen.Generate(context.Background(), "a cat", ModeInline, RetryPolicy{MaxAttempts: 4, Unit: time.Second})
	if !errors.Is(err, domain.ErrImageGeneration) {
		t.Fatalf("error = %v, want ErrImageGeneration", err)
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Attempts != 4 {
		t.Fatalf("error = %#v, want 4 attempts", err)
	}
	if api.calls != 4 {
		t.Fatalf("calls = %d, want 4", api.calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if !reflect.DeepEqual(rec.delays, want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
}

func TestGenerateInvalidModeMakesNoAttempt(t *testing.T) {
	api := &stubAPI{queue: []stubResponse{inline("x")}}
	gen := NewGenerator(Options{API: api})
	_, err := gen.Generate(context.Background(), "a cat", Mode("svg"), DefaultRetryPolicy())
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
	if api.calls != 0 {
		t.Fatalf("calls = %d, want 0", api.calls)
	}
}

func TestGenerateDecodeErrorIsRetried(t *testing.T) {
	api := &stubAPI{queue: []stubResponse{{payload: Payload{B64JSON: "%%%"}}, inline("ok")}}
	rec := &sleepRecorder{}
	gen := NewGenerator(Options{API: api, Sleep: rec.sleep})
	res, err := gen.Generate(context.Background(), "p", ModeInline, DefaultRetryPolicy())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if res.Attempts != 2 || string(res.Data) != "ok" {
		t.Fatalf("result = %+v", res)
	}
}

func TestGenerateRemoteURL(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("remote-bytes"))
	}))
	defer ts.Close()

	api := &stubAPI{queue: []stubResponse{{payload: Payload{URL: ts.URL + "/img.png"}}}}
	rec := &sleepRecorder{}
	gen := NewGenerator(Options{API: api, HTTPClient: ts.Client(), Sleep: rec.sleep})
	res, err := gen.Generate(context.Background(), "p", ModeURL, DefaultRetryPolicy())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if string(res.Data) != "remote-bytes" {
		t.Fatalf("data = %q", res.Data)
	}
	if res.Attempts != 2 || api.calls != 2 {
		t.Fatalf("attempts = %d calls = %d, want 2", res.Attempts, api.calls)
	}
	if api.modes[0] != ModeURL {
		t.Fatalf("mode = %q, want remote-url", api.modes[0])
	}
}

func TestGenerateStopsWhenContextCancelled(t *testing.T) {
	api := &stubAPI{queue: []stubResponse{failure()}}
	ctx, cancel := context.WithCancel(context.Background())
	gen := NewGenerator(Options{API: api, Sleep: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}})
	_, err := gen.Generate(ctx, "p", ModeInline, RetryPolicy{MaxAttempts: 5})
	if !errors.Is(err, domain.ErrImageGeneration) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v", err)
	}
	if !errors.Is(err, errUpstream) {
		t.Fatalf("error = %v, upstream failure was dropped", err)
	}
	if api.calls != 1 {
		t.Fatalf("calls = %d, want 1", api.calls)
	}
}

func TestGenerateSingleAttemptNeverSleeps(t *testing.T) {
	api := &stubAPI{queue: []stubResponse{failure()}}
	rec := &sleepRecorder{}
	gen := NewGenerator(Options{API: api, Sleep: rec.sleep})
	_, err := gen.Generate(context.Background(), "p", ModeInline, RetryPolicy{MaxAttempts: 1, Unit: time.Second})
	if !errors.Is(err, errUpstream) {
		t.Fatalf("error = %v, want upstream failure", err)
	}
	if api.calls != 1 || len(rec.delays) != 0 {
		t.Fatalf("calls = %d delays = %v, want 1 call and no pause", api.calls, rec.delays)
	}
}

func TestRetryPolicyBackOffSchedule(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
		want   []time.Duration
	}{
		{name: "defaults", policy: RetryPolicy{}, want: []time.Duration{time.Second, 2 * time.Second}},
		{name: "custom unit", policy: RetryPolicy{MaxAttempts: 5, Unit: 10 * time.Millisecond},
			want: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 80 * time.Millisecond}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			schedule := tc.policy.BackOff(context.Background())
			var got []time.Duration
			for d := schedule.NextBackOff(); d != backoff.Stop; d = schedule.NextBackOff() {
				got = append(got, d)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("schedule = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRetryPolicyBackOffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	schedule := RetryPolicy{MaxAttempts: 5}.BackOff(ctx)
	cancel()
	if d := schedule.NextBackOff(); d != backoff.Stop {
		t.Fatalf("NextBackOff = %v, want Stop after cancel", d)
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"":               ModeInline,
		"base64":         ModeInline,
		"B64_JSON":       ModeInline,
		"inline-encoded": ModeInline,
		"url":            ModeURL,
		"remote-url":     ModeURL,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("gif"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("ParseMode(gif) error = %v", err)
	}
}
