package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesCode(t *testing.T) {
	err := New(NotFound, "entity missing")
	assert.Equal(t, NotFound, err.Code)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestWithPathIncludesPathInMessage(t *testing.T) {
	err := WithPath(Conflict, "data/orders/data.parquet", "precondition violated")
	assert.Equal(t, "data/orders/data.parquet", err.Path)
	assert.Contains(t, err.Error(), "data/orders/data.parquet")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(Internal, "x", nil))
}

func TestWrapPreservesUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(Network, "", cause)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, cause))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, Internal, CodeOf(stderrors.New("plain error")))
}

func TestCodeOfExtractsWrappedCode(t *testing.T) {
	err := New(HashMismatch, "commit hash mismatch")
	wrapped := fmtWrap(err)
	assert.Equal(t, HashMismatch, CodeOf(wrapped))
}

func TestIs(t *testing.T) {
	err := New(LockHeld, "lock held by another writer")
	assert.True(t, Is(err, LockHeld))
	assert.False(t, Is(err, Timeout))
}

func fmtWrap(err error) error {
	return stderrors.Join(err)
}
