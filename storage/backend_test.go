package storage

import (
	"context"
	"testing"
	"time"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backendsUnderTest(t *testing.T) map[string]Backend {
	local, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"local":  local,
	}
}

func TestRoundTripWriteRead(t *testing.T) {
	ctx := context.Background()
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("hello chronicle")
			_, err := b.Write(ctx, "a/b.txt", data, WriteOptions{})
			require.NoError(t, err)

			got, err := b.Read(ctx, "a/b.txt")
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestReadRangeBoundaries(t *testing.T) {
	ctx := context.Background()
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			data := make([]byte, 1024)
			for i := range data {
				data[i] = byte(i % 256)
			}
			_, err := b.Write(ctx, "t.bin", data, WriteOptions{})
			require.NoError(t, err)

			full, err := b.ReadRange(ctx, "t.bin", ByteRange{Start: 0, End: 1024})
			require.NoError(t, err)
			assert.Equal(t, data, full)

			tail, err := b.ReadRange(ctx, "t.bin", ByteRange{Start: 1024 - 8, End: 1024})
			require.NoError(t, err)
			assert.Equal(t, data[1016:], tail)

			empty, err := b.ReadRange(ctx, "t.bin", ByteRange{Start: 512, End: 512})
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Read(ctx, "missing.txt")
			require.Error(t, err)
			assert.Equal(t, cherrors.NotFound, cherrors.CodeOf(err))
		})
	}
}

func TestWriteIfNoneMatchStar(t *testing.T) {
	ctx := context.Background()
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Write(ctx, "once.txt", []byte("v1"), WriteOptions{IfNoneMatch: "*"})
			require.NoError(t, err)

			_, err = b.Write(ctx, "once.txt", []byte("v2"), WriteOptions{IfNoneMatch: "*"})
			require.Error(t, err)
			assert.Equal(t, cherrors.Conflict, cherrors.CodeOf(err))
		})
	}
}

func TestWriteConditionalEtagMismatch(t *testing.T) {
	ctx := context.Background()
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			res, err := b.Write(ctx, "cond.txt", []byte("v1"), WriteOptions{})
			require.NoError(t, err)

			_, err = b.WriteConditional(ctx, "cond.txt", []byte("v2"), "wrong-etag")
			require.Error(t, err)
			assert.Equal(t, cherrors.Conflict, cherrors.CodeOf(err))

			_, err = b.WriteConditional(ctx, "cond.txt", []byte("v2"), res.Etag)
			require.NoError(t, err)
		})
	}
}

func TestWriteProducesDistinctEtagForIdenticalContent(t *testing.T) {
	ctx := context.Background()
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			first, err := b.Write(ctx, "same.txt", []byte("identical"), WriteOptions{})
			require.NoError(t, err)

			second, err := b.Write(ctx, "same.txt", []byte("identical"), WriteOptions{})
			require.NoError(t, err)

			assert.NotEqual(t, first.Etag, second.Etag, "rewriting identical content must not reuse the prior etag")

			st, err := b.Stat(ctx, "same.txt")
			require.NoError(t, err)
			require.NotNil(t, st)
			assert.Equal(t, second.Etag, st.Etag, "Stat must reflect the etag from the most recent write")
		})
	}
}

func TestMemoryBackendPreservesSuppliedMtime(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	mtime := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err := b.Write(ctx, "f", []byte("x"), WriteOptions{Mtime: &mtime})
	require.NoError(t, err)

	st, err := b.Stat(ctx, "f")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, mtime.Equal(st.Mtime))
}

func TestListWithPrefix(t *testing.T) {
	ctx := context.Background()
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, _ = b.Write(ctx, "data/a.parquet", []byte("1"), WriteOptions{})
			_, _ = b.Write(ctx, "data/b.parquet", []byte("2"), WriteOptions{})
			_, _ = b.Write(ctx, "events/seg1.parquet", []byte("3"), WriteOptions{})

			res, err := b.List(ctx, "data/", ListOptions{})
			require.NoError(t, err)
			assert.Len(t, res.Files, 2)
		})
	}
}

func TestPathValidationRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Write(ctx, "../escape.txt", []byte("x"), WriteOptions{})
			require.Error(t, err)
			assert.Equal(t, cherrors.Validation, cherrors.CodeOf(err))
		})
	}
}
