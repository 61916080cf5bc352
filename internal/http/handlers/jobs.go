package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"scenegen/internal/domain"
)

type generateImagesRequest struct {
	APIKey   string `json:"api_key"`
	Style    string `json:"style"`
	Script   string `json:"script"`
	FilePath string `json:"file_path"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// GenerateImages queues a background job and answers 202 with its id.
func (a *App) GenerateImages(w http.ResponseWriter, r *http.Request) {
	var body generateImagesRequest
	if !a.decode(w, r, &body) {
		return
	}
	req := domain.GenerationRequest{
		APIKey:   strings.TrimSpace(body.APIKey),
		Style:    body.Style,
		Script:   body.Script,
		FilePath: strings.TrimSpace(body.FilePath),
	}
	if err := req.Validate(); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.FilePath != "" {
		path, err := a.Uploads.Path(req.FilePath)
		if err != nil {
			a.error(w, http.StatusBadRequest, "file_path does not name an uploaded file")
			return
		}
		req.FilePath = path
	}

	jobID, err := a.Jobs.Submit(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, submitResponse{JobID: jobID})
}

// Progress reports the current state of a job.
func (a *App) Progress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.Progress(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "job not found")
			return
		}
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}
