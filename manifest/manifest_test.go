package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/evalgo-chronicle/chronicle/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExcludesMetaAndDotPaths(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	_, err := backend.Write(ctx, "data/posts/data.parquet", []byte("x"), storage.WriteOptions{})
	require.NoError(t, err)
	_, err = backend.Write(ctx, "_meta/manifest.json", []byte("{}"), storage.WriteOptions{})
	require.NoError(t, err)
	_, err = backend.Write(ctx, "_meta/locks/db1", []byte("lock"), storage.WriteOptions{})
	require.NoError(t, err)
	_, err = backend.Write(ctx, ".git/HEAD", []byte("ref"), storage.WriteOptions{})
	require.NoError(t, err)

	m, err := Build(ctx, backend, "db1", "mydb", "private")
	require.NoError(t, err)
	_, hasData := m.Files["data/posts/data.parquet"]
	assert.True(t, hasData)
	assert.Len(t, m.Files, 1)
}

func entry(hash string, mod time.Time) FileEntry {
	return FileEntry{Hash: hash, ModifiedAt: mod}
}

func TestDiffLocalOnlyGoesToUpload(t *testing.T) {
	local := Manifest{Files: map[string]FileEntry{"a": entry("h1", time.Now())}}
	remote := Manifest{Files: map[string]FileEntry{}}
	d := Diff(local, remote)
	assert.Equal(t, []string{"a"}, d.ToUpload)
	assert.Empty(t, d.ToDownload)
	assert.Empty(t, d.Conflicts)
}

func TestDiffRemoteOnlyGoesToDownload(t *testing.T) {
	local := Manifest{Files: map[string]FileEntry{}}
	remote := Manifest{Files: map[string]FileEntry{"a": entry("h1", time.Now())}}
	d := Diff(local, remote)
	assert.Equal(t, []string{"a"}, d.ToDownload)
}

func TestDiffNewerLocalWins(t *testing.T) {
	now := time.Now()
	local := Manifest{Files: map[string]FileEntry{"a": entry("h2", now.Add(time.Minute))}}
	remote := Manifest{Files: map[string]FileEntry{"a": entry("h1", now)}}
	d := Diff(local, remote)
	assert.Equal(t, []string{"a"}, d.ToUpload)
	assert.Empty(t, d.Conflicts)
}

func TestDiffEqualTimestampsAreConflict(t *testing.T) {
	now := time.Now()
	local := Manifest{Files: map[string]FileEntry{"a": entry("h2", now)}}
	remote := Manifest{Files: map[string]FileEntry{"a": entry("h1", now)}}
	d := Diff(local, remote)
	assert.Equal(t, []string{"a"}, d.Conflicts)
	assert.Empty(t, d.ToUpload)
	assert.Empty(t, d.ToDownload)
}

func TestDiffIdenticalHashesIsSynced(t *testing.T) {
	now := time.Now()
	local := Manifest{Files: map[string]FileEntry{"a": entry("h1", now)}}
	remote := Manifest{Files: map[string]FileEntry{"a": entry("h1", now.Add(time.Hour))}}
	assert.True(t, IsSynced(local, remote))
}
