//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xuejiangtao/rrd4j/pkg/backend"
)

// postgresHelper starts a PostgreSQL container for integration tests, or
// connects to an external one via POSTGRES_HOST.
type postgresHelper struct {
	cfg Config
}

func newPostgresHelper(t *testing.T) *postgresHelper {
	t.Helper()
	ctx := context.Background()

	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		port := 5432
		if p := os.Getenv("POSTGRES_PORT"); p != "" {
			fmt.Sscanf(p, "%d", &port)
		}
		return &postgresHelper{cfg: Config{
			Host:     host,
			Port:     port,
			Database: envOr("POSTGRES_DATABASE", "rrd_test"),
			User:     envOr("POSTGRES_USER", "rrd"),
			Password: envOr("POSTGRES_PASSWORD", "rrd"),
		}}
	}

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("rrd_test"),
		tcpostgres.WithUsername("rrd"),
		tcpostgres.WithPassword("rrd"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return &postgresHelper{cfg: Config{
		Host:     host,
		Port:     port.Int(),
		Database: "rrd_test",
		User:     "rrd",
		Password: "rrd",
	}}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// startedFactory registers the POSTGRES kind against a unique table so
// tests do not see each other's rows.
func startedFactory(t *testing.T, h *postgresHelper) *backend.Factory {
	t.Helper()

	cfg := h.cfg
	cfg.Table = "rrd_" + uuid.NewString()[:8]
	reg := backend.NewRegistry()
	Register(reg, cfg)

	f, err := reg.Factory(Name)
	require.NoError(t, err)
	ok, err := f.Start(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _, _ = reg.Purge(context.Background(), Name) })
	return f
}

func TestIntegration_RoundtripThroughTable(t *testing.T) {
	ctx := context.Background()
	h := newPostgresHelper(t)
	f := startedFactory(t, h)

	b, err := f.Open(ctx, "graphs/load", false)
	require.NoError(t, err)
	require.NoError(t, b.SetLength(ctx, 256))
	require.NoError(t, b.WriteAt(ctx, []byte("RRD\x03"), 0))
	require.NoError(t, b.Close(ctx))

	exists, err := f.Exists(ctx, "graphs/load")
	require.NoError(t, err)
	assert.True(t, exists)

	ro, err := f.Open(ctx, "graphs/load", true)
	require.NoError(t, err)
	got := make([]byte, 4)
	require.NoError(t, ro.ReadAt(ctx, got, 0))
	assert.Equal(t, []byte("RRD\x03"), got)

	n, err := ro.Length(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 256, n)
}

func TestIntegration_RewriteReplacesImage(t *testing.T) {
	ctx := context.Background()
	h := newPostgresHelper(t)
	f := startedFactory(t, h)

	b, err := f.Open(ctx, "a", false)
	require.NoError(t, err)
	require.NoError(t, b.WriteAt(ctx, []byte("first"), 0))
	require.NoError(t, b.Close(ctx))

	b, err = f.Open(ctx, "a", false)
	require.NoError(t, err)
	require.NoError(t, b.SetLength(ctx, 3))
	require.NoError(t, b.WriteAt(ctx, []byte("two"), 0))
	require.NoError(t, b.Close(ctx))

	ro, err := f.Open(ctx, "a", true)
	require.NoError(t, err)
	n, err := ro.Length(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestIntegration_MissingRow(t *testing.T) {
	ctx := context.Background()
	h := newPostgresHelper(t)
	f := startedFactory(t, h)

	exists, err := f.Exists(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.Open(ctx, "absent", true)
	assert.Error(t, err)
}

func TestIntegration_PoolStatsExposed(t *testing.T) {
	h := newPostgresHelper(t)
	f := startedFactory(t, h)

	stats := f.Stats()
	assert.Contains(t, stats, "pool_total_conns")
	assert.Contains(t, stats, "opens_total")
}

func TestIntegration_StartAgainstBadHostFails(t *testing.T) {
	cfg := Config{
		Host:           "127.0.0.1",
		Port:           1, // nothing listens here
		Database:       "rrd_test",
		User:           "rrd",
		ConnectTimeout: 2 * time.Second,
	}
	reg := backend.NewRegistry()
	Register(reg, cfg)

	f, err := reg.Factory(Name)
	require.NoError(t, err)

	ok, err := f.Start(context.Background())
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, backend.StateFailed, f.State())
}
