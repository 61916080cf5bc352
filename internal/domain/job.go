package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusInitializing JobStatus = "initializing"
	JobStatusParsing      JobStatus = "parsing"
	JobStatusGenerating   JobStatus = "generating"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusError        JobStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Job is the progress record of one pipeline execution.
type Job struct {
	ID           string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	CurrentScene int       `json:"current_scene"`
	TotalScenes  int       `json:"total_scenes"`
	Scenes       []Scene   `json:"scenes"`
	Images       []string  `json:"images"`
	Error        string    `json:"error"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewJob returns a job in the initializing state.
func NewJob(id string, now time.Time) *Job {
	return &Job{
		ID:        id,
		Status:    JobStatusInitializing,
		Scenes:    []Scene{},
		Images:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so readers never share slices with the owning worker.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Scenes = append([]Scene{}, j.Scenes...)
	cp.Images = append([]string{}, j.Images...)
	return &cp
}

// GenerationRequest is everything needed to run the pipeline once.
type GenerationRequest struct {
	APIKey       string `json:"api_key,omitempty"`
	Style        string `json:"style,omitempty"`
	Script       string `json:"script,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	SnapshotPath string `json:"snapshot_path,omitempty"`
	Template     string `json:"template,omitempty"`
	ImageFormat  string `json:"image_format,omitempty"`
	MaxAttempts  int    `json:"max_attempts,omitempty"`
}

// Validate checks that exactly one scene source is supplied.
func (r GenerationRequest) Validate() error {
	hasScript := strings.TrimSpace(r.Script) != ""
	hasFile := strings.TrimSpace(r.FilePath) != ""
	switch {
	case hasScript && hasFile:
		return fmt.Errorf("%w: supply either script or file_path, not both", ErrConfiguration)
	case !hasScript && !hasFile:
		return fmt.Errorf("%w: script or file_path is required", ErrConfiguration)
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must not be negative", ErrConfiguration)
	}
	return nil
}

// JobTask is the unit handed from submitters to workers.
type JobTask struct {
	JobID   string            `json:"job_id"`
	Request GenerationRequest `json:"request"`
}
