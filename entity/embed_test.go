package entity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedisQueue(t *testing.T) *RedisEmbedQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewRedisEmbedQueue(context.Background(), "redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestRedisEmbedQueueDispatchThenDequeue(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := context.Background()

	job := EmbedJob{EntityID: "posts/1", Field: "summaryVector", SourceText: "hello world", Model: "test-model", EnqueuedAt: time.Now()}
	require.NoError(t, q.Dispatch(ctx, job))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, job.EntityID, got.EntityID)
	require.Equal(t, job.SourceText, got.SourceText)
}

func TestRedisEmbedQueueDequeueTimesOutWhenEmpty(t *testing.T) {
	q := newTestRedisQueue(t)
	got, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisEmbedQueueDefaultsKeyWhenEmpty(t *testing.T) {
	q := newTestRedisQueue(t)
	require.Equal(t, "chronicle:embed", q.key)
}
