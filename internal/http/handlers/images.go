package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"scenegen/internal/domain"
	"scenegen/pkg/zip"
)

type downloadAllRequest struct {
	Images []string `json:"images"`
}

// Image serves one generated file.
func (a *App) Image(w http.ResponseWriter, r *http.Request) {
	name := path.Base(chi.URLParam(r, "filename"))
	data, err := a.Images.Read(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "image not found")
			return
		}
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DownloadAll zips the listed images, or every generated image when the
// body is empty.
func (a *App) DownloadAll(w http.ResponseWriter, r *http.Request) {
	var body downloadAllRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	names := body.Images
	if len(names) == 0 {
		listed, err := a.Images.List(".png")
		if err != nil {
			a.fail(w, r, err)
			return
		}
		names = listed
	}
	if len(names) == 0 {
		a.error(w, http.StatusNotFound, "no images to download")
		return
	}

	assets := make([]zip.Asset, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := path.Base(raw)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		data, err := a.Images.Read(r.Context(), name)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				a.error(w, http.StatusNotFound, fmt.Sprintf("image %s not found", name))
				return
			}
			a.fail(w, r, err)
			return
		}
		assets = append(assets, zip.Asset{Filename: name, Data: data})
	}

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=scenes-%s.zip", time.Now().UTC().Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
