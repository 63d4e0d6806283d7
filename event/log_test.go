package event

import (
	"context"
	"testing"
	"time"

	"github.com/evalgo-chronicle/chronicle/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendIsVisibleBeforeFlush(t *testing.T) {
	l := New(storage.NewMemoryBackend())
	l.Append(Event{ID: NewID(), TS: time.Now(), Op: Create, Target: "posts/1"})

	page, err := l.GetEvents(context.Background(), "posts/1", Filter{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestSnapshotClearsTailBuffer(t *testing.T) {
	l := New(storage.NewMemoryBackend())
	l.Append(Event{ID: NewID(), TS: time.Now(), Op: Create, Target: "posts/1"})

	batch := l.Snapshot()
	assert.Len(t, batch, 1)
	assert.Empty(t, l.PendingSnapshot())
}

func TestWriteSegmentPersistsAndIsQueryable(t *testing.T) {
	backend := storage.NewMemoryBackend()
	l := New(backend)
	ev := Event{ID: NewID(), TS: time.Now(), Op: Create, Target: "posts/1", After: map[string]any{"title": "V1"}}
	l.Append(ev)

	batch := l.Snapshot()
	_, err := l.WriteSegment(context.Background(), "posts", batch)
	require.NoError(t, err)

	page, err := l.GetEvents(context.Background(), "posts/1", Filter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "V1", page.Items[0].After["title"])
}

func TestRestoreUndoesSegmentWrite(t *testing.T) {
	backend := storage.NewMemoryBackend()
	l := New(backend)
	first := Event{ID: NewID(), TS: time.Now(), Op: Create, Target: "posts/1"}
	l.Append(first)
	batch := l.Snapshot()
	w, err := l.WriteSegment(context.Background(), "posts", batch)
	require.NoError(t, err)

	require.NoError(t, l.Restore(context.Background(), w))

	exists, err := backend.Exists(context.Background(), w.Path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOrderingStableTiebreakOnID(t *testing.T) {
	same := time.Now()
	events := []Event{
		{ID: "b", TS: same, Target: "posts/1"},
		{ID: "a", TS: same, Target: "posts/1"},
	}
	sortEvents(events)
	assert.Equal(t, "a", events[0].ID)
	assert.Equal(t, "b", events[1].ID)
}

func TestClockStrictlyMonotonic(t *testing.T) {
	c := NewClock()
	prev := c.Now()
	for i := 0; i < 1000; i++ {
		next := c.Now()
		assert.True(t, next.After(prev))
		prev = next
	}
}

func TestPaginationCursor(t *testing.T) {
	backend := storage.NewMemoryBackend()
	l := New(backend)
	base := time.Now()
	for i := 0; i < 5; i++ {
		l.Append(Event{ID: NewID(), TS: base.Add(time.Duration(i) * time.Millisecond), Op: Update, Target: "posts/1"})
	}
	batch := l.Snapshot()
	_, err := l.WriteSegment(context.Background(), "posts", batch)
	require.NoError(t, err)

	page, err := l.GetEvents(context.Background(), "posts/1", Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)

	next, err := l.GetEvents(context.Background(), "posts/1", Filter{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, next.Items, 2)
}
