package timetravel

import (
	"context"
	"testing"
	"time"

	"github.com/evalgo-chronicle/chronicle/entity"
	"github.com/evalgo-chronicle/chronicle/event"
	"github.com/evalgo-chronicle/chronicle/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHarness() (*event.Log, *entity.Store, *Engine) {
	log := event.New(storage.NewMemoryBackend())
	store := entity.NewStore(log, nil, nil, nil)
	engine := New(log, store)
	store.SetReplayer(engine)
	return log, store, engine
}

func TestAsOfBeforeCreationReturnsNotFound(t *testing.T) {
	_, store, _ := newHarness()
	ctx := context.Background()
	_, err := store.Create(ctx, "posts", entity.Entity{"title": "v1"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)

	got, err := store.Get(ctx, "posts", "1", entity.GetOptions{AsOf: ptr(time.Now().Add(-time.Hour))})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAsOfAfterUpdateReflectsLatestState(t *testing.T) {
	ctx := context.Background()
	_, store, _ := newHarness()

	_, err := store.Create(ctx, "posts", entity.Entity{"title": "v1"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	mid := time.Now()
	time.Sleep(2 * time.Millisecond)
	_, err = store.Update(ctx, "posts", "1", entity.UpdateSpec{"$set": {"title": "v2"}}, "")
	require.NoError(t, err)

	got, err := store.Get(ctx, "posts", "1", entity.GetOptions{AsOf: &mid})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v1", got["title"])
}

func TestAsOfAfterDeleteReturnsNil(t *testing.T) {
	ctx := context.Background()
	_, store, _ := newHarness()

	_, err := store.Create(ctx, "posts", entity.Entity{}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "posts", "1", ""))

	now := time.Now()
	got, err := store.Get(ctx, "posts", "1", entity.GetOptions{AsOf: &now})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDiffReportsAddedChangedRemoved(t *testing.T) {
	ctx := context.Background()
	_, store, engine := newHarness()

	_, err := store.Create(ctx, "posts", entity.Entity{"title": "v1", "draft": true}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)
	t1 := time.Now()
	time.Sleep(2 * time.Millisecond)

	_, err = store.Update(ctx, "posts", "1", entity.UpdateSpec{
		"$set":   {"title": "v2", "author": "alice"},
		"$unset": {"draft": true},
	}, "")
	require.NoError(t, err)
	t2 := time.Now()

	d, err := engine.Diff(ctx, "posts/1", t1, t2)
	require.NoError(t, err)
	assert.Contains(t, d.Added, "author")
	assert.Contains(t, d.Changed, "title")
	assert.Contains(t, d.Removed, "draft")
}

func TestDiffArrayChangeReportsWholeArray(t *testing.T) {
	ctx := context.Background()
	_, store, engine := newHarness()

	_, err := store.Create(ctx, "posts", entity.Entity{"tags": []any{"a"}}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)
	t1 := time.Now()
	time.Sleep(2 * time.Millisecond)

	_, err = store.Update(ctx, "posts", "1", entity.UpdateSpec{"$push": {"tags": "b"}}, "")
	require.NoError(t, err)
	t2 := time.Now()

	d, err := engine.Diff(ctx, "posts/1", t1, t2)
	require.NoError(t, err)
	require.Contains(t, d.Changed, "tags")
	pair := d.Values["tags"]
	assert.Equal(t, []any{"a"}, pair.Before)
	assert.Equal(t, []any{"a", "b"}, pair.After)
}

func TestRevertRestoresPastStateAndBumpsVersion(t *testing.T) {
	ctx := context.Background()
	_, store, engine := newHarness()

	_, err := store.Create(ctx, "posts", entity.Entity{"title": "v1"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)
	t1 := time.Now()
	time.Sleep(2 * time.Millisecond)

	_, err = store.Update(ctx, "posts", "1", entity.UpdateSpec{"$set": {"title": "v2"}}, "")
	require.NoError(t, err)

	reverted, err := engine.Revert(ctx, "posts/1", t1, "alice")
	require.NoError(t, err)
	assert.Equal(t, "v1", reverted["title"])
	assert.Equal(t, 3, reverted.Version())
}

func TestRevertFutureTimeIsValidationError(t *testing.T) {
	ctx := context.Background()
	_, _, engine := newHarness()
	_, err := engine.Revert(ctx, "posts/1", time.Now().Add(time.Hour), "")
	require.Error(t, err)
}

func TestRevertBringsTombstonedEntityBackAlive(t *testing.T) {
	ctx := context.Background()
	_, store, engine := newHarness()

	_, err := store.Create(ctx, "posts", entity.Entity{"title": "v1"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)
	t1 := time.Now()
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Delete(ctx, "posts", "1", ""))

	reverted, err := engine.Revert(ctx, "posts/1", t1, "")
	require.NoError(t, err)
	assert.Equal(t, "v1", reverted["title"])
	assert.Equal(t, 2, reverted.Version())

	got, err := store.Get(ctx, "posts", "1", entity.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestRevertAfterDeleteNeverReusesAnIntermediateVersion(t *testing.T) {
	ctx := context.Background()
	_, store, engine := newHarness()

	_, err := store.Create(ctx, "posts", entity.Entity{"title": "v1"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)
	t1 := time.Now()
	time.Sleep(2 * time.Millisecond)

	updated, err := store.Update(ctx, "posts", "1", entity.UpdateSpec{"$set": {"title": "v2"}}, "")
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version())

	require.NoError(t, store.Delete(ctx, "posts", "1", ""))

	reverted, err := engine.Revert(ctx, "posts/1", t1, "")
	require.NoError(t, err)
	assert.Equal(t, "v1", reverted["title"])
	assert.Equal(t, 3, reverted.Version(), "revert must not reuse the version already emitted by the intervening update")
}

func ptr(t time.Time) *time.Time { return &t }
