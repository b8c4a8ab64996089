// Package postgres stores round-robin archives as rows in a PostgreSQL
// table, one row per archive path. Archives are buffered in memory while
// open and written back as a whole on Sync and Close.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xuejiangtao/rrd4j/internal/logger"
	"github.com/xuejiangtao/rrd4j/pkg/backend"
)

// Name is the registry name of the PostgreSQL backend kind.
const Name = "POSTGRES"

// Register registers the PostgreSQL backend kind with reg under Name.
func Register(reg *backend.Registry, cfg Config) string {
	return reg.Register(Name, func() (backend.Driver, error) {
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return New(cfg), nil
	})
}

// Driver implements backend.Driver on top of a pgx connection pool. The
// pool is created in Start and released in Stop.
type Driver struct {
	cfg  Config
	pool *pgxpool.Pool

	opens   atomic.Int64
	flushes atomic.Int64
}

// New returns a driver for cfg. No connection is made until Start.
func New(cfg Config) *Driver {
	cfg.ApplyDefaults()
	return &Driver{cfg: cfg}
}

// NewWithPool returns a driver using an existing pool. Start only ensures
// the archive table exists.
func NewWithPool(pool *pgxpool.Pool, cfg Config) *Driver {
	cfg.ApplyDefaults()
	return &Driver{cfg: cfg, pool: pool}
}

// Start implements backend.Driver: it creates the connection pool, pings
// the server and ensures the archive table exists.
func (d *Driver) Start(ctx context.Context) error {
	if d.pool == nil {
		poolConfig, err := pgxpool.ParseConfig(d.cfg.ConnectionString())
		if err != nil {
			return fmt.Errorf("parse connection string: %w", err)
		}
		poolConfig.MaxConns = d.cfg.MaxConns
		poolConfig.MinConns = d.cfg.MinConns
		poolConfig.MaxConnLifetime = d.cfg.MaxConnLifetime
		poolConfig.MaxConnIdleTime = d.cfg.MaxConnIdleTime
		poolConfig.HealthCheckPeriod = d.cfg.HealthCheckPeriod

		logger.Info("creating PostgreSQL connection pool",
			"host", d.cfg.Host,
			"port", d.cfg.Port,
			"database", d.cfg.Database,
			"max_conns", d.cfg.MaxConns,
		)
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return fmt.Errorf("create connection pool: %w", err)
		}
		d.pool = pool
	}

	if err := d.pool.Ping(ctx); err != nil {
		d.pool.Close()
		d.pool = nil
		return fmt.Errorf("ping PostgreSQL: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		path       TEXT PRIMARY KEY,
		image      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, pgx.Identifier{d.cfg.Table}.Sanitize())
	if _, err := d.pool.Exec(ctx, ddl); err != nil {
		d.pool.Close()
		d.pool = nil
		return fmt.Errorf("ensure table %s: %w", d.cfg.Table, err)
	}
	return nil
}

// Stop implements backend.Driver and releases the connection pool.
func (d *Driver) Stop(ctx context.Context) error {
	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
	return nil
}

// Open implements backend.Driver. The row is fetched whole; a missing row
// starts empty unless opened read-only.
func (d *Driver) Open(ctx context.Context, path string, readOnly bool) (backend.Backend, error) {
	var image []byte
	query := fmt.Sprintf("SELECT image FROM %s WHERE path = $1",
		pgx.Identifier{d.cfg.Table}.Sanitize())
	err := d.pool.QueryRow(ctx, query, path).Scan(&image)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		if readOnly {
			return nil, fmt.Errorf("archive %q not found in table %s", path, d.cfg.Table)
		}
		image = nil
	default:
		return nil, fmt.Errorf("load archive %q: %w", path, err)
	}

	d.opens.Add(1)
	return backend.NewBlobBackend(path, image, readOnly, func(ctx context.Context, image []byte) error {
		return d.flush(ctx, path, image)
	}), nil
}

func (d *Driver) flush(ctx context.Context, path string, image []byte) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (path, image, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET image = EXCLUDED.image, updated_at = now()`,
		pgx.Identifier{d.cfg.Table}.Sanitize())
	if _, err := d.pool.Exec(ctx, stmt, path, image); err != nil {
		return fmt.Errorf("store archive %q: %w", path, err)
	}
	d.flushes.Add(1)
	return nil
}

// Exists implements backend.Driver.
func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE path = $1)",
		pgx.Identifier{d.cfg.Table}.Sanitize())
	if err := d.pool.QueryRow(ctx, query, path).Scan(&exists); err != nil {
		return false, fmt.Errorf("check archive %q: %w", path, err)
	}
	return exists, nil
}

// Delete removes an archive row. Deleting a missing path is not an error.
func (d *Driver) Delete(ctx context.Context, path string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE path = $1",
		pgx.Identifier{d.cfg.Table}.Sanitize())
	if _, err := d.pool.Exec(ctx, stmt, path); err != nil {
		return fmt.Errorf("delete archive %q: %w", path, err)
	}
	return nil
}

// ShouldValidateHeader implements backend.Driver. Rows written through
// this kind are never touched by other tools, so headers are trusted.
func (d *Driver) ShouldValidateHeader(ctx context.Context, path string) (bool, error) {
	return false, nil
}

// ResolveUniqID implements backend.Driver.
func (d *Driver) ResolveUniqID(id any) (string, error) {
	path, ok := id.(string)
	if !ok {
		return "", fmt.Errorf("unsupported identifier type %T", id)
	}
	return fmt.Sprintf("postgres://%s/%s/%s", d.cfg.Database, d.cfg.Table, path), nil
}

// Stats implements backend.StatsProvider with pool stats when available.
func (d *Driver) Stats() map[string]float64 {
	stats := map[string]float64{
		"opens_total":   float64(d.opens.Load()),
		"flushes_total": float64(d.flushes.Load()),
	}
	if d.pool != nil {
		s := d.pool.Stat()
		stats["pool_total_conns"] = float64(s.TotalConns())
		stats["pool_idle_conns"] = float64(s.IdleConns())
		stats["pool_acquired_conns"] = float64(s.AcquiredConns())
	}
	return stats
}
