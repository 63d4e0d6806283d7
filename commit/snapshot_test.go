package commit

import (
	"context"
	"testing"

	"github.com/evalgo-chronicle/chronicle/entity"
	"github.com/evalgo-chronicle/chronicle/event"
	"github.com/evalgo-chronicle/chronicle/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *entity.Store {
	log := event.New(storage.NewMemoryBackend())
	return entity.NewStore(log, nil, nil, nil)
}

func TestBuildDatabaseStateCountsRowsPerNamespace(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, err := store.Create(ctx, "posts", entity.Entity{"title": "a"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)
	_, err = store.Create(ctx, "posts", entity.Entity{"title": "b"}, entity.CreateOptions{ID: "2"})
	require.NoError(t, err)
	_, err = store.Create(ctx, "authors", entity.Entity{"name": "alice"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)

	state, err := BuildDatabaseState(ctx, store, EventLogPosition{})
	require.NoError(t, err)

	require.Contains(t, state.Collections, "posts")
	require.Contains(t, state.Collections, "authors")
	assert.Equal(t, 2, state.Collections["posts"].RowCount)
	assert.Equal(t, 1, state.Collections["authors"].RowCount)
	assert.NotEmpty(t, state.Collections["posts"].DataHash)
	assert.NotEmpty(t, state.Collections["posts"].SchemaHash)
}

func TestBuildDatabaseStateDataHashChangesWithContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	_, err := store.Create(ctx, "posts", entity.Entity{"title": "a"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)

	before, err := BuildDatabaseState(ctx, store, EventLogPosition{})
	require.NoError(t, err)

	_, err = store.Update(ctx, "posts", "1", entity.UpdateSpec{"$set": {"title": "b"}}, "")
	require.NoError(t, err)

	after, err := BuildDatabaseState(ctx, store, EventLogPosition{})
	require.NoError(t, err)

	assert.NotEqual(t, before.Collections["posts"].DataHash, after.Collections["posts"].DataHash)
}

func TestBuildDatabaseStateExcludesDeletedEntities(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	_, err := store.Create(ctx, "posts", entity.Entity{"title": "a"}, entity.CreateOptions{ID: "1"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "posts", "1", ""))

	state, err := BuildDatabaseState(ctx, store, EventLogPosition{})
	require.NoError(t, err)
	assert.NotContains(t, state.Collections, "posts")
}
