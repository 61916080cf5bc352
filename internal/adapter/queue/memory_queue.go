// Package queue hands submitted jobs to pipeline workers, either through an
// in-process channel or a Redis list shared with external workers.
package queue

import (
	"context"

	"scenegen/internal/domain"
)

// MemoryQueue is a bounded in-process FIFO.
type MemoryQueue struct {
	tasks chan domain.JobTask
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 64
	}
	return &MemoryQueue{tasks: make(chan domain.JobTask, capacity)}
}

// Push blocks while the queue is full.
func (q *MemoryQueue) Push(ctx context.Context, task domain.JobTask) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (domain.JobTask, error) {
	select {
	case task := <-q.tasks:
		return task, nil
	case <-ctx.Done():
		return domain.JobTask{}, ctx.Err()
	}
}

// Len reports the number of tasks waiting.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}

var _ domain.JobQueue = (*MemoryQueue)(nil)
