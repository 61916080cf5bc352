package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"scenegen/internal/domain"
	"scenegen/internal/pipeline"
	"scenegen/internal/scenes"
)

type scriptRequest struct {
	APIKey string `json:"api_key"`
	Script string `json:"script"`
	Style  string `json:"style"`
}

type fileResponse struct {
	Images    []string `json:"images"`
	OutputDir string   `json:"output_dir"`
}

type uploadResponse struct {
	FilePath string `json:"file_path"`
}

// GenerateFromScript runs the whole pipeline synchronously on script text.
func (a *App) GenerateFromScript(w http.ResponseWriter, r *http.Request) {
	var body scriptRequest
	if !a.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Script) == "" {
		a.error(w, http.StatusBadRequest, "script is required")
		return
	}
	res, err := a.Runner.Run(r.Context(), domain.GenerationRequest{
		APIKey: strings.TrimSpace(body.APIKey),
		Script: body.Script,
		Style:  body.Style,
	}, pipeline.NopReporter{})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

// GenerateFromFile runs the pipeline on an uploaded CSV or JSON scene file.
// The upload is removed once the run ends.
func (a *App) GenerateFromFile(w http.ResponseWriter, r *http.Request) {
	key, ok := a.receiveUpload(w, r)
	if !ok {
		return
	}
	defer func() {
		if err := a.Uploads.Remove(key); err != nil {
			a.logger(r).Warn().Err(err).Str("upload", key).Msg("remove upload")
		}
	}()

	path, err := a.Uploads.Path(key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Runner.Run(r.Context(), domain.GenerationRequest{
		APIKey:   strings.TrimSpace(r.FormValue("api_key")),
		Style:    r.FormValue("style"),
		FilePath: path,
	}, pipeline.NopReporter{})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, fileResponse{Images: res.Images, OutputDir: res.OutputDir})
}

// Upload stores a scene file for a later /api/generate-images call.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	key, ok := a.receiveUpload(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusCreated, uploadResponse{FilePath: key})
}

// receiveUpload saves the multipart "file" field under a unique key.
func (a *App) receiveUpload(w http.ResponseWriter, r *http.Request) (string, bool) {
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.error(w, http.StatusBadRequest, "invalid multipart form")
		return "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "file is required")
		return "", false
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		a.error(w, http.StatusBadRequest, "no file selected")
		return "", false
	}
	if _, err := scenes.FormatFromPath(name); err != nil {
		a.fail(w, r, err)
		return "", false
	}
	key := fmt.Sprintf("%s_%s", uuid.NewString(), name)
	if _, err := a.Uploads.Save(r.Context(), key, file); err != nil {
		a.fail(w, r, err)
		return "", false
	}
	return key, true
}
