package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
)

func TestS3BackendRoundTripWriteRead(t *testing.T) {
	ctx := context.Background()
	b := NewS3BackendWithClient(newMockS3Client(), "test-bucket", "")

	_, err := b.Write(ctx, "a/b.txt", []byte("hello chronicle"), WriteOptions{})
	require.NoError(t, err)

	got, err := b.Read(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello chronicle"), got)
}

func TestS3BackendReadMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	b := NewS3BackendWithClient(newMockS3Client(), "test-bucket", "")

	_, err := b.Read(ctx, "missing.txt")
	require.Error(t, err)
	assert.Equal(t, cherrors.NotFound, cherrors.CodeOf(err))
}

func TestS3BackendStatOnMissingReturnsNilNil(t *testing.T) {
	ctx := context.Background()
	b := NewS3BackendWithClient(newMockS3Client(), "test-bucket", "")

	st, err := b.Stat(ctx, "missing.txt")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestS3BackendPrefixIsApplied(t *testing.T) {
	ctx := context.Background()
	client := newMockS3Client()
	b := NewS3BackendWithClient(client, "test-bucket", "dbs/alpha")

	_, err := b.Write(ctx, "a.txt", []byte("v1"), WriteOptions{})
	require.NoError(t, err)

	_, ok := client.objects["dbs/alpha/a.txt"]
	assert.True(t, ok)

	got, err := b.Read(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestS3BackendListReturnsUnprefixedPaths(t *testing.T) {
	ctx := context.Background()
	b := NewS3BackendWithClient(newMockS3Client(), "test-bucket", "")

	_, _ = b.Write(ctx, "data/a.parquet", []byte("1"), WriteOptions{})
	_, _ = b.Write(ctx, "data/b.parquet", []byte("2"), WriteOptions{})
	_, _ = b.Write(ctx, "events/seg1.parquet", []byte("3"), WriteOptions{})

	res, err := b.List(ctx, "data/", ListOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Files, 2)
}

func TestS3BackendCopyThenDelete(t *testing.T) {
	ctx := context.Background()
	b := NewS3BackendWithClient(newMockS3Client(), "test-bucket", "")

	_, err := b.Write(ctx, "src.txt", []byte("payload"), WriteOptions{})
	require.NoError(t, err)

	require.NoError(t, b.Copy(ctx, "src.txt", "dst.txt"))
	got, err := b.Read(ctx, "dst.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	require.NoError(t, b.Delete(ctx, "src.txt"))
	_, err = b.Read(ctx, "src.txt")
	require.Error(t, err)
}

func TestS3BackendReadRangeBoundaries(t *testing.T) {
	ctx := context.Background()
	b := NewS3BackendWithClient(newMockS3Client(), "test-bucket", "")

	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	_, err := b.Write(ctx, "t.bin", data, WriteOptions{})
	require.NoError(t, err)

	tail, err := b.ReadRange(ctx, "t.bin", ByteRange{Start: 56, End: 64})
	require.NoError(t, err)
	assert.Equal(t, data[56:], tail)
}
