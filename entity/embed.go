package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbedJob is the work item enqueued for every $embed operator
// encountered by ApplyUpdate: the embeddings service (producer) computes a
// vector from SourceText and writes it back to Field via a later UPDATE.
type EmbedJob struct {
	EntityID   ID        `json:"entityId"`
	Field      string    `json:"field"`
	SourceText string    `json:"sourceText"`
	Model      string    `json:"model"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// EmbedDispatcher hands EmbedJob off to whatever computes embeddings.
// Store calls Dispatch for every EmbedRequest an Update produces; a nil
// dispatcher silently drops $embed requests (the field is simply never
// populated).
type EmbedDispatcher interface {
	Dispatch(ctx context.Context, job EmbedJob) error
}

// RedisEmbedQueue dispatches EmbedJob onto a Redis list, generalized from
// queue/redis/queue.go's Enqueue/Dequeue pattern to the $embed job shape.
type RedisEmbedQueue struct {
	client *redis.Client
	key    string
}

// NewRedisEmbedQueue connects to redisURL and targets the given queue key
// (defaulting to "chronicle:embed" when empty).
func NewRedisEmbedQueue(ctx context.Context, redisURL, key string) (*RedisEmbedQueue, error) {
	if key == "" {
		key = "chronicle:embed"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisEmbedQueue{client: client, key: key}, nil
}

// Close releases the underlying Redis connection.
func (q *RedisEmbedQueue) Close() error { return q.client.Close() }

func (q *RedisEmbedQueue) Dispatch(ctx context.Context, job EmbedJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal embed job: %w", err)
	}
	return q.client.RPush(ctx, q.key, string(data)).Err()
}

// Dequeue pops the next EmbedJob, blocking up to timeout. Consumed by a
// worker process running the actual embeddings model; out of scope here.
func (q *RedisEmbedQueue) Dequeue(ctx context.Context, timeout time.Duration) (*EmbedJob, error) {
	result, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue embed job: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job EmbedJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal embed job: %w", err)
	}
	return &job, nil
}
