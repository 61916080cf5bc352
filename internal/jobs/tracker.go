// Package jobs runs pipeline executions in the background and records their
// progress so clients can poll it.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"scenegen/internal/domain"
	"scenegen/internal/pipeline"
)

// MaxErrorLength caps the error message stored on a failed job.
const MaxErrorLength = 2000

// Runner executes one generation request end to end.
type Runner interface {
	Run(ctx context.Context, req domain.GenerationRequest, reporter pipeline.Reporter) (pipeline.Result, error)
}

// Options configures a Tracker.
type Options struct {
	Store   domain.JobStore
	Queue   domain.JobQueue
	Runner  Runner
	Workers int
	Logger  zerolog.Logger
	Now     func() time.Time
	NewID   func() string
}

// Tracker accepts job submissions, serves progress reads and drives the
// worker pool. Each job record is written only by the worker running it.
type Tracker struct {
	store   domain.JobStore
	queue   domain.JobQueue
	runner  Runner
	workers int
	logger  zerolog.Logger
	now     func() time.Time
	newID   func() string
}

func NewTracker(opts Options) (*Tracker, error) {
	if opts.Store == nil {
		return nil, errors.New("jobs: store is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("jobs: queue is required")
	}
	t := &Tracker{
		store:   opts.Store,
		queue:   opts.Queue,
		runner:  opts.Runner,
		workers: opts.Workers,
		logger:  opts.Logger,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if t.workers < 1 {
		t.workers = 1
	}
	if t.now == nil {
		t.now = func() time.Time { return time.Now().UTC() }
	}
	if t.newID == nil {
		t.newID = uuid.NewString
	}
	return t, nil
}

// Submit validates req, records a new initializing job and enqueues it.
// Invalid requests fail before any record is created.
func (t *Tracker) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	job := domain.NewJob(t.newID(), t.now())
	if err := t.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	if err := t.queue.Push(ctx, domain.JobTask{JobID: job.ID, Request: req}); err != nil {
		t.fail(context.WithoutCancel(ctx), job, fmt.Errorf("enqueue job: %w", err))
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	t.logger.Info().Str("job_id", job.ID).Msg("job submitted")
	return job.ID, nil
}

// Progress returns a snapshot of the job, or domain.ErrNotFound.
func (t *Tracker) Progress(ctx context.Context, jobID string) (*domain.Job, error) {
	return t.store.Get(ctx, jobID)
}

// Run starts the worker pool and blocks until ctx is cancelled or a worker
// hits an unrecoverable error.
func (t *Tracker) Run(ctx context.Context) error {
	if t.runner == nil {
		return errors.New("jobs: runner is required to process jobs")
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < t.workers; i++ {
		worker := i
		g.Go(func() error {
			return t.work(ctx, worker)
		})
	}
	t.logger.Info().Int("workers", t.workers).Msg("job workers started")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (t *Tracker) work(ctx context.Context, worker int) error {
	log := t.logger.With().Int("worker", worker).Logger()
	for {
		task, err := t.queue.Pop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Error().Err(err).Msg("pop job")
			if sleepErr := sleepContext(ctx, time.Second); sleepErr != nil {
				return nil
			}
			continue
		}
		t.Process(ctx, task)
	}
}

// Process runs one task to a terminal state. Store failures are logged, not
// returned, so a single bad record never stops the worker.
func (t *Tracker) Process(ctx context.Context, task domain.JobTask) {
	log := t.logger.With().Str("job_id", task.JobID).Logger()
	ctx = log.WithContext(ctx)
	// Progress writes must land even while the process is shutting down.
	writeCtx := context.WithoutCancel(ctx)

	job, err := t.store.Get(writeCtx, task.JobID)
	if err != nil {
		log.Error().Err(err).Msg("load job")
		return
	}
	if job.Status.Terminal() {
		log.Warn().Str("status", string(job.Status)).Msg("skipping finished job")
		return
	}

	start := time.Now()
	rep := &jobReporter{tracker: t, job: job, ctx: writeCtx}
	if _, err := t.runner.Run(ctx, task.Request, rep); err != nil {
		t.fail(writeCtx, job, err)
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		return
	}
	job.Status = domain.JobStatusCompleted
	t.save(writeCtx, job)
	log.Info().Int("images", len(job.Images)).Dur("elapsed", time.Since(start)).Msg("job completed")
}

func (t *Tracker) fail(ctx context.Context, job *domain.Job, err error) {
	job.Status = domain.JobStatusError
	job.Error = truncate(err.Error(), MaxErrorLength)
	t.save(ctx, job)
}

func (t *Tracker) save(ctx context.Context, job *domain.Job) {
	job.UpdatedAt = t.now()
	if err := t.store.Update(ctx, job); err != nil {
		t.logger.Error().Err(err).Str("job_id", job.ID).Str("status", string(job.Status)).Msg("update job")
	}
}

// jobReporter mirrors pipeline progress into the job record.
type jobReporter struct {
	tracker *Tracker
	job     *domain.Job
	ctx     context.Context
}

func (r *jobReporter) Parsing(context.Context) {
	r.job.Status = domain.JobStatusParsing
	r.tracker.save(r.ctx, r.job)
}

func (r *jobReporter) Generating(_ context.Context, scenes []domain.Scene) {
	r.job.Status = domain.JobStatusGenerating
	r.job.Scenes = append([]domain.Scene{}, scenes...)
	r.job.TotalScenes = len(scenes)
	r.tracker.save(r.ctx, r.job)
}

func (r *jobReporter) SceneStarted(_ context.Context, index int, _ domain.Scene) {
	r.job.CurrentScene = index + 1
	r.tracker.save(r.ctx, r.job)
}

func (r *jobReporter) ImageSaved(_ context.Context, filename string) {
	r.job.Images = append(r.job.Images, filename)
	r.tracker.save(r.ctx, r.job)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
