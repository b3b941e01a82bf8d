// Package announce delivers "new work" hints to compute nodes. Hints are
// advisory: nodes that miss one still find the job by polling.
package announce

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list nodes consume job ids from
const DefaultQueueKey = "job_queue"

// RedisQueue pushes job ids onto a Redis list (LPUSH, consumers BRPOP)
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects to the Redis server at url, e.g. redis://localhost:6379/0
func NewRedisQueue(url, key string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: redis.NewClient(opts), key: key}, nil
}

// Announce pushes jobID onto the queue
func (q *RedisQueue) Announce(ctx context.Context, jobID string) error {
	return q.client.LPush(ctx, q.key, jobID).Err()
}

// Ping checks the connection
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the connection pool
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
