package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobBackend_FlushOnlyWhenDirty(t *testing.T) {
	ctx := context.Background()
	var flushes [][]byte
	b := NewBlobBackend("db1", []byte("seed"), false, func(ctx context.Context, image []byte) error {
		flushes = append(flushes, image)
		return nil
	})

	// Clean image: nothing to flush.
	require.NoError(t, b.Sync(ctx))
	assert.Empty(t, flushes)

	require.NoError(t, b.WriteAt(ctx, []byte("SEED"), 0))
	require.NoError(t, b.Sync(ctx))
	require.Len(t, flushes, 1)
	assert.Equal(t, "SEED", string(flushes[0]))

	// Synced state is clean again.
	require.NoError(t, b.Sync(ctx))
	assert.Len(t, flushes, 1)
}

func TestBlobBackend_CloseFlushesPendingContent(t *testing.T) {
	ctx := context.Background()
	var flushed []byte
	b := NewBlobBackend("db1", nil, false, func(ctx context.Context, image []byte) error {
		flushed = image
		return nil
	})

	require.NoError(t, b.SetLength(ctx, 8))
	require.NoError(t, b.WriteAt(ctx, []byte("data"), 0))
	require.NoError(t, b.Close(ctx))
	require.Len(t, flushed, 8)
	assert.Equal(t, "data", string(flushed[:4]))
}

func TestBlobBackend_FlushFaultSurfacesAndStaysDirty(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("store gone")
	fail := true
	flushes := 0
	b := NewBlobBackend("db1", nil, false, func(ctx context.Context, image []byte) error {
		flushes++
		if fail {
			return cause
		}
		return nil
	})

	require.NoError(t, b.WriteAt(ctx, []byte("x"), 0))
	require.ErrorIs(t, b.Sync(ctx), cause)

	// The content is still pending: a later sync retries the flush.
	fail = false
	require.NoError(t, b.Sync(ctx))
	assert.Equal(t, 2, flushes)
}

func TestBlobBackend_ReadOnlyNeverFlushes(t *testing.T) {
	ctx := context.Background()
	b := NewBlobBackend("db1", []byte("image"), true, func(ctx context.Context, image []byte) error {
		t.Fatal("flush must not run for read-only backends")
		return nil
	})

	assert.Error(t, b.WriteAt(ctx, []byte("x"), 0))
	assert.Error(t, b.SetLength(ctx, 1))

	got := make([]byte, 5)
	require.NoError(t, b.ReadAt(ctx, got, 0))
	assert.Equal(t, "image", string(got))
	require.NoError(t, b.Close(ctx))
}
