package domain

import "context"

// JobStore persists job progress records.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	Update(ctx context.Context, job *Job) error
}

// JobQueue hands submitted jobs to workers.
type JobQueue interface {
	Push(ctx context.Context, task JobTask) error
	Pop(ctx context.Context) (JobTask, error)
}
