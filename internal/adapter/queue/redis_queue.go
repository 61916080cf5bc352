package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scenegen/internal/domain"
)

// DefaultPollTimeout bounds each BRPOP so Pop notices cancellation.
const DefaultPollTimeout = 5 * time.Second

// ListClient is the subset of redis.Cmdable used by the queue.
type ListClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisQueue stores JSON-encoded tasks in a Redis list. Producers LPUSH and
// workers BRPOP, giving FIFO order across processes.
type RedisQueue struct {
	client      ListClient
	key         string
	pollTimeout time.Duration
}

func NewRedisQueue(client ListClient, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key, pollTimeout: DefaultPollTimeout}
}

func (q *RedisQueue) Push(ctx context.Context, task domain.JobTask) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.JobID, err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("push task %s: %w", task.JobID, err)
	}
	return nil
}

// Pop blocks until a task arrives or ctx is done.
func (q *RedisQueue) Pop(ctx context.Context) (domain.JobTask, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.JobTask{}, err
		}
		res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.JobTask{}, ctxErr
			}
			return domain.JobTask{}, fmt.Errorf("pop task: %w", err)
		}
		// BRPOP replies with [key, value].
		if len(res) != 2 {
			return domain.JobTask{}, fmt.Errorf("pop task: unexpected reply of length %d", len(res))
		}
		var task domain.JobTask
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			return domain.JobTask{}, fmt.Errorf("decode task: %w", err)
		}
		return task, nil
	}
}

var _ domain.JobQueue = (*RedisQueue)(nil)
