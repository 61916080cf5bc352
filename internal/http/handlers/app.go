package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"scenegen/internal/domain"
	"scenegen/internal/jobs"
	"scenegen/internal/storage"
)

// JobService is the asynchronous side of the API.
type JobService interface {
	Submit(ctx context.Context, req domain.GenerationRequest) (string, error)
	Progress(ctx context.Context, jobID string) (*domain.Job, error)
}

type App struct {
	Runner         jobs.Runner
	Jobs           JobService
	Images         *storage.FileStore
	Uploads        *storage.FileStore
	Logger         zerolog.Logger
	MaxUploadBytes int64
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, errorResponse{Error: msg})
}

// fail maps err onto a status code and writes the error envelope. Server
// faults are logged and hidden from the client.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		a.logger(r).Error().Err(err).Int("status", code).Msg("request failed")
	}
	if code == http.StatusInternalServerError {
		a.error(w, code, "internal server error")
		return
	}
	a.error(w, code, err.Error())
}

func (a *App) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfiguration),
		errors.Is(err, domain.ErrTemplate),
		errors.Is(err, domain.ErrModelResponse),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrImageGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		a.error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
