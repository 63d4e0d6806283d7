package embedqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-chronicle/chronicle/entity"
	"github.com/evalgo-chronicle/chronicle/event"
	"github.com/evalgo-chronicle/chronicle/storage"
)

// fakeQueue serves its queued jobs in order; once they are used up, each
// Dequeue waits for the poll timeout or ctx cancellation and returns nil.
type fakeQueue struct {
	mu      sync.Mutex
	jobs    []entity.EmbedJob
	served  int
	delayed time.Duration
}

func (f *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*entity.EmbedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.served < len(f.jobs) {
		job := f.jobs[f.served]
		f.served++
		return &job, nil
	}
	select {
	case <-time.After(timeout):
	case <-ctx.Done():
	}
	return nil, nil
}

type fakeComputer struct {
	vector []float64
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeComputer) Compute(ctx context.Context, sourceText, model string) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.vector, f.err
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(noopWriter{})
	return logrus.NewEntry(l)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestPoolWritesComputedVectorBackOntoEntity(t *testing.T) {
	log := event.New(storage.NewMemoryBackend())
	store := entity.NewStore(log, nil, nil, nil)

	created, err := store.Create(context.Background(), "posts", entity.Entity{"title": "hello"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)

	queue := &fakeQueue{jobs: []entity.EmbedJob{{
		EntityID:   created.ID(),
		Field:      "summaryVector",
		SourceText: "hello world",
		Model:      "test-model",
	}}}
	compute := &fakeComputer{vector: []float64{0.1, 0.2, 0.3}}

	pool := NewPool(queue, compute, store, testLogger(), 1, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		compute.mu.Lock()
		defer compute.mu.Unlock()
		return compute.calls >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()

	got, err := store.Get(context.Background(), "posts", "1", entity.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got["summaryVector"])
}

func TestPoolSkipsUpdateWhenComputeFails(t *testing.T) {
	log := event.New(storage.NewMemoryBackend())
	store := entity.NewStore(log, nil, nil, nil)

	created, err := store.Create(context.Background(), "posts", entity.Entity{"title": "hello"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)

	queue := &fakeQueue{jobs: []entity.EmbedJob{{
		EntityID:   created.ID(),
		Field:      "summaryVector",
		SourceText: "hello world",
		Model:      "test-model",
	}}}
	compute := &fakeComputer{err: assertErr{}}

	pool := NewPool(queue, compute, store, testLogger(), 1, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		compute.mu.Lock()
		defer compute.mu.Unlock()
		return compute.calls >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()

	got, err := store.Get(context.Background(), "posts", "1", entity.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotContains(t, got, "summaryVector")
}

type assertErr struct{}

func (assertErr) Error() string { return "compute failed" }
