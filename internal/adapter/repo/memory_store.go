package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"scenegen/internal/domain"
)

// MemoryJobStore keeps job records in process. Readers always receive
// clones so a worker mutating its own copy never races a progress poll.
type MemoryJobStore struct {
	items     *cache.Cache
	retention time.Duration
}

// NewMemoryJobStore returns an in-process store. A zero retention keeps
// records for the life of the process.
func NewMemoryJobStore(retention time.Duration) *MemoryJobStore {
	if retention <= 0 {
		return &MemoryJobStore{items: cache.New(cache.NoExpiration, 0), retention: cache.NoExpiration}
	}
	return &MemoryJobStore{items: cache.New(retention, retention/2), retention: retention}
}

func (s *MemoryJobStore) Create(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if err := s.items.Add(job.ID, job.Clone(), s.retention); err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	v, ok := s.items.Get(jobID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v.(*domain.Job).Clone(), nil
}

func (s *MemoryJobStore) Update(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	if err := s.items.Replace(job.ID, job.Clone(), s.retention); err != nil {
		return domain.ErrNotFound
	}
	return nil
}

// Len reports the number of live records.
func (s *MemoryJobStore) Len() int {
	return s.items.ItemCount()
}

var _ domain.JobStore = (*MemoryJobStore)(nil)
