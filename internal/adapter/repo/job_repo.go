package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"scenegen/internal/domain"
	"scenegen/internal/infra"
	"scenegen/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobStore on PostgreSQL so progress is
// shared between the API process and external workers.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// EnsureSchema creates the scene_jobs table when missing.
func (r *JobRepositoryPG) EnsureSchema(ctx context.Context) error {
	_, err := r.sql.Exec(ctx, sqlinline.QCreateSceneJobs)
	return err
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	scenes, images, err := encodeJobLists(job)
	if err != nil {
		return err
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertSceneJob,
		job.ID,
		string(job.Status),
		job.CurrentScene,
		job.TotalScenes,
		scenes,
		images,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	row := r.sql.QueryRow(ctx, sqlinline.QSelectSceneJob, jobID)
	var (
		job    domain.Job
		status string
		scenes []byte
		images []byte
	)
	if err := row.Scan(
		&job.ID,
		&status,
		&job.CurrentScene,
		&job.TotalScenes,
		&scenes,
		&images,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if err := json.Unmarshal(scenes, &job.Scenes); err != nil {
		return nil, fmt.Errorf("decode scenes for job %s: %w", jobID, err)
	}
	if err := json.Unmarshal(images, &job.Images); err != nil {
		return nil, fmt.Errorf("decode images for job %s: %w", jobID, err)
	}
	if job.Scenes == nil {
		job.Scenes = []domain.Scene{}
	}
	if job.Images == nil {
		job.Images = []string{}
	}
	return &job, nil
}

// Update overwrites the mutable columns of an existing job.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.Job) error {
	scenes, images, err := encodeJobLists(job)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateSceneJob,
		job.ID,
		string(job.Status),
		job.CurrentScene,
		job.TotalScenes,
		scenes,
		images,
		job.Error,
		job.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func encodeJobLists(job *domain.Job) ([]byte, []byte, error) {
	if job == nil {
		return nil, nil, fmt.Errorf("job is required")
	}
	scenes := job.Scenes
	if scenes == nil {
		scenes = []domain.Scene{}
	}
	images := job.Images
	if images == nil {
		images = []string{}
	}
	rawScenes, err := json.Marshal(scenes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode scenes: %w", err)
	}
	rawImages, err := json.Marshal(images)
	if err != nil {
		return nil, nil, fmt.Errorf("encode images: %w", err)
	}
	return rawScenes, rawImages, nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
