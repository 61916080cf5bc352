package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"scenegen/internal/domain"
	"scenegen/internal/http/handlers"
	"scenegen/internal/pipeline"
	"scenegen/internal/providers/image"
	"scenegen/internal/storage"
)

type stubRunner struct {
	mu   sync.Mutex
	reqs []domain.GenerationRequest
	res  pipeline.Result
	err  error
	// fileSeen records whether the uploaded file existed during the run.
	fileSeen bool
}

func (s *stubRunner) Run(ctx context.Context, req domain.GenerationRequest, rep pipeline.Reporter) (pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if req.FilePath != "" {
		_, err := os.Stat(req.FilePath)
		s.fileSeen = err == nil
	}
	return s.res, s.err
}

type stubJobs struct {
	submitted []domain.GenerationRequest
	jobs      map[string]*domain.Job
}

func (s *stubJobs) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	s.submitted = append(s.submitted, req)
	return "job-1", nil
}

func (s *stubJobs) Progress(ctx context.Context, jobID string) (*domain.Job, error) {
	if job, ok := s.jobs[jobID]; ok {
		return job, nil
	}
	return nil, domain.ErrNotFound
}

type fixture struct {
	handler http.Handler
	runner  *stubRunner
	jobs    *stubJobs
	images  *storage.FileStore
	uploads *storage.FileStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	images, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("images store: %v", err)
	}
	uploads, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("uploads store: %v", err)
	}
	f := &fixture{
		runner:  &stubRunner{},
		jobs:    &stubJobs{jobs: map[string]*domain.Job{}},
		images:  images,
		uploads: uploads,
	}
	app := &handlers.App{
		Runner:         f.runner,
		Jobs:           f.jobs,
		Images:         images,
		Uploads:        uploads,
		Logger:         zerolog.Nop(),
		MaxUploadBytes: 1 << 20,
	}
	f.handler = NewRouter(app, Options{AllowedOrigins: []string{"*"}, RateLimitPerMin: 100})
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = fw.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestGenerateFromScript(t *testing.T) {
	f := newFixture(t)
	f.runner.res = pipeline.Result{
		Scenes:    []domain.Scene{{SceneNumber: 1, ScriptLine: "Rain", SceneType: "exterior", Props: []string{}}},
		Images:    []string{"scene_001.png"},
		OutputDir: f.images.BasePath(),
	}
	rec := f.do(t, http.MethodPost, "/api/generate-from-script", []byte(`{"api_key":"k","script":"EXT. STREET - NIGHT","style":"noir"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Images) != 1 || got.OutputDir != f.images.BasePath() {
		t.Fatalf("response = %+v", got)
	}
	req := f.runner.reqs[0]
	if req.APIKey != "k" || req.Style != "noir" || req.Script == "" {
		t.Fatalf("runner request = %+v", req)
	}
}

func TestGenerateFromScriptErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		runErr  error
		want    int
		wantMsg string
	}{
		{name: "bad json", body: `{`, want: http.StatusBadRequest},
		{name: "missing script", body: `{"api_key":"k"}`, want: http.StatusBadRequest, wantMsg: "script is required"},
		{name: "model response", body: `{"script":"x"}`, runErr: fmt.Errorf("%w: no array", domain.ErrModelResponse), want: http.StatusBadRequest},
		{name: "image failure", body: `{"script":"x"}`, runErr: &image.GenerationError{Attempts: 3, Err: fmt.Errorf("503")}, want: http.StatusBadGateway},
		{name: "unexpected", body: `{"script":"x"}`, runErr: fmt.Errorf("disk full"), want: http.StatusInternalServerError, wantMsg: "internal server error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.runner.err = tc.runErr
			rec := f.do(t, http.MethodPost, "/api/generate-from-script", []byte(tc.body), "application/json")
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			msg := decodeError(t, rec)
			if tc.wantMsg != "" && msg != tc.wantMsg {
				t.Fatalf("error = %q, want %q", msg, tc.wantMsg)
			}
		})
	}
}

func TestGenerateFromFile(t *testing.T) {
	f := newFixture(t)
	f.runner.res = pipeline.Result{Images: []string{"scene_001.png"}, OutputDir: "out"}
	body, ct := multipartBody(t, "scenes.csv", "scene_number,script_line,scene_type,props\n1,Rain,exterior,umbrella\n", map[string]string{"api_key": "k"})

	rec := f.do(t, http.MethodPost, "/api/generate-from-file", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !f.runner.fileSeen {
		t.Fatal("upload was not on disk while the pipeline ran")
	}
	leftover, _ := f.uploads.List("")
	if len(leftover) != 0 {
		t.Fatalf("uploads left behind: %v", leftover)
	}
	if !strings.Contains(rec.Body.String(), `"output_dir":"out"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGenerateFromFileRejectsInput(t *testing.T) {
	f := newFixture(t)

	body, ct := multipartBody(t, "scenes.txt", "hello", nil)
	rec := f.do(t, http.MethodPost, "/api/generate-from-file", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported extension status = %d, want 400", rec.Code)
	}

	body, ct = multipartBody(t, "", "", map[string]string{"api_key": "k"})
	rec = f.do(t, http.MethodPost, "/api/generate-from-file", body, ct)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != "file is required" {
		t.Fatalf("missing file = %d %s", rec.Code, rec.Body.String())
	}
	if len(f.runner.reqs) != 0 {
		t.Fatalf("runner called %d times for rejected input", len(f.runner.reqs))
	}
}

func TestUploadThenGenerateImages(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartBody(t, "scenes.json", `[{"scene_number":1,"script_line":"Rain","scene_type":"exterior","props":""}]`, nil)
	rec := f.do(t, http.MethodPost, "/api/uploads", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var up struct {
		FilePath string `json:"file_path"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &up)
	if !strings.HasSuffix(up.FilePath, "_scenes.json") {
		t.Fatalf("file_path = %q", up.FilePath)
	}

	payload, _ := json.Marshal(map[string]string{"api_key": "k", "style": "anime", "file_path": up.FilePath})
	rec = f.do(t, http.MethodPost, "/api/generate-images", payload, "application/json")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"job_id":"job-1"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
	got := f.jobs.submitted[0]
	if !strings.HasPrefix(got.FilePath, f.uploads.BasePath()) {
		t.Fatalf("file path not resolved inside upload dir: %s", got.FilePath)
	}
}

func TestGenerateImagesValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "neither", body: `{"api_key":"k"}`},
		{name: "both", body: `{"api_key":"k","script":"x","file_path":"a.csv"}`},
		{name: "unknown upload", body: `{"api_key":"k","file_path":"missing.csv"}`},
		{name: "escape attempt", body: `{"api_key":"k","file_path":"../etc/passwd"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/api/generate-images", []byte(tc.body), "application/json")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
			if len(f.jobs.submitted) != 0 {
				t.Fatal("invalid request was submitted")
			}
		})
	}
}

func TestProgress(t *testing.T) {
	f := newFixture(t)
	job := domain.NewJob("job-7", time.Now())
	job.Status = domain.JobStatusGenerating
	job.TotalScenes = 3
	job.CurrentScene = 2
	f.jobs.jobs["job-7"] = job

	rec := f.do(t, http.MethodGet, "/api/progress/job-7", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["status"] != "generating" || got["current_scene"] != float64(2) || got["total_scenes"] != float64(3) {
		t.Fatalf("progress = %v", got)
	}

	rec = f.do(t, http.MethodGet, "/api/progress/unknown", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d, want 404", rec.Code)
	}
}

func TestImageAndDownloadAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"scene_001.png", "scene_002.png"} {
		if _, err := f.images.Write(ctx, name, []byte("png:"+name)); err != nil {
			t.Fatalf("seed image: %v", err)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/images/scene_001.png", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" || rec.Body.String() != "png:scene_001.png" {
		t.Fatalf("image = %d %s %q", rec.Code, rec.Header().Get("Content-Type"), rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/api/images/scene_009.png", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing image status = %d, want 404", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/download-all", nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("download-all = %d %s", rec.Code, rec.Body.String())
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("zip entries = %d, want 2", len(zr.File))
	}

	rec = f.do(t, http.MethodPost, "/api/download-all", []byte(`{"images":["scene_002.png"]}`), "application/json")
	zr, err = zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil || len(zr.File) != 1 || zr.File[0].Name != "scene_002.png" {
		t.Fatalf("selected download = %v entries, err %v", zr, err)
	}

	rec = f.do(t, http.MethodPost, "/api/download-all", []byte(`{"images":["scene_404.png"]}`), "application/json")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing selection status = %d, want 404", rec.Code)
	}
}

func TestDownloadAllEmpty(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/download-all", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
