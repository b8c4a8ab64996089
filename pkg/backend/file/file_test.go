package file

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuejiangtao/rrd4j/pkg/backend"
)

func startedFactory(t *testing.T) *backend.Factory {
	t.Helper()
	reg := backend.NewRegistry()
	Register(reg)

	f, err := reg.Factory(Name)
	require.NoError(t, err)
	ok, err := f.Start(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	return f
}

func TestDriver_OpenWriteReadRoundtrip(t *testing.T) {
	ctx := context.Background()
	f := startedFactory(t)
	path := filepath.Join(t.TempDir(), "demo.rrd")

	b, err := f.Open(ctx, path, false)
	require.NoError(t, err)

	require.NoError(t, b.SetLength(ctx, 32))
	require.NoError(t, b.WriteAt(ctx, []byte("RRD\x00"), 0))
	require.NoError(t, b.WriteAt(ctx, []byte{0xCA, 0xFE}, 30))
	require.NoError(t, b.Sync(ctx))
	require.NoError(t, b.Close(ctx))

	ro, err := f.Open(ctx, path, true)
	require.NoError(t, err)
	defer func() { _ = ro.Close(ctx) }()

	n, err := ro.Length(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 32, n)

	head := make([]byte, 4)
	require.NoError(t, ro.ReadAt(ctx, head, 0))
	assert.Equal(t, []byte("RRD\x00"), head)

	tail := make([]byte, 2)
	require.NoError(t, ro.ReadAt(ctx, tail, 30))
	assert.Equal(t, []byte{0xCA, 0xFE}, tail)
}

func TestDriver_OpenMissingReadOnlyFails(t *testing.T) {
	ctx := context.Background()
	f := startedFactory(t)

	_, err := f.Open(ctx, filepath.Join(t.TempDir(), "absent.rrd"), true)
	assert.Error(t, err)
}

func TestDriver_ReadOnlyBackendRejectsWrites(t *testing.T) {
	ctx := context.Background()
	f := startedFactory(t)
	path := filepath.Join(t.TempDir(), "demo.rrd")

	b, err := f.Open(ctx, path, false)
	require.NoError(t, err)
	require.NoError(t, b.SetLength(ctx, 8))
	require.NoError(t, b.Close(ctx))

	ro, err := f.Open(ctx, path, true)
	require.NoError(t, err)
	defer func() { _ = ro.Close(ctx) }()

	assert.Error(t, ro.WriteAt(ctx, []byte("x"), 0))
	assert.Error(t, ro.SetLength(ctx, 4))
	assert.NoError(t, ro.Sync(ctx), "sync on a read-only backend is a no-op")
}

func TestDriver_Exists(t *testing.T) {
	ctx := context.Background()
	f := startedFactory(t)
	path := filepath.Join(t.TempDir(), "demo.rrd")

	exists, err := f.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)

	b, err := f.Open(ctx, path, false)
	require.NoError(t, err)
	require.NoError(t, b.Close(ctx))

	exists, err = f.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDriver_ResolveUniqID(t *testing.T) {
	d := New()

	id, err := d.ResolveUniqID("some/../demo.rrd")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(id))
	assert.Equal(t, "demo.rrd", filepath.Base(id))

	_, err = d.ResolveUniqID(struct{}{})
	assert.Error(t, err)
}

func TestDriver_StatsTrackOpenBackends(t *testing.T) {
	ctx := context.Background()
	d := New()
	path := filepath.Join(t.TempDir(), "demo.rrd")

	b, err := d.Open(ctx, path, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.Stats()["open_backends"])

	require.NoError(t, b.Close(ctx))
	assert.EqualValues(t, 0, d.Stats()["open_backends"])
	assert.EqualValues(t, 1, d.Stats()["opens_total"])
}
