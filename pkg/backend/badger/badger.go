// Package badger provides a BadgerDB-backed backend factory. Every archive
// is stored as one value keyed by its path, loaded into memory on open and
// flushed back on sync and close. The factory owns the database handle:
// starting it opens the database, stopping it closes it.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/xuejiangtao/rrd4j/pkg/backend"
)

// Name is the canonical factory name for this kind.
const Name = "BADGER"

// Config holds BadgerDB adapter configuration.
type Config struct {
	// Dir is the database directory. Required unless InMemory is set.
	Dir string

	// InMemory runs the database without disk persistence. Intended for
	// tests.
	InMemory bool

	// SyncWrites makes badger fsync on every commit instead of relying on
	// Sync calls.
	SyncWrites bool
}

// Register adds the factory to reg under its canonical name, capturing cfg
// in the constructor, and returns the name.
func Register(reg *backend.Registry, cfg Config) string {
	return reg.Register(Name, func() (backend.Driver, error) {
		return New(cfg), nil
	})
}

// Driver stores archives in a badger database opened on Start.
type Driver struct {
	cfg   Config
	db    *badgerdb.DB
	opens atomic.Int64
}

// New returns a driver for cfg. The database is not touched until Start.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// Start implements backend.Driver: it opens the database.
func (d *Driver) Start(ctx context.Context) error {
	if d.cfg.Dir == "" && !d.cfg.InMemory {
		return errors.New("badger backend requires a database directory")
	}

	opts := badgerdb.DefaultOptions(d.cfg.Dir).
		WithInMemory(d.cfg.InMemory).
		WithSyncWrites(d.cfg.SyncWrites).
		WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database at %q: %w", d.cfg.Dir, err)
	}
	d.db = db
	return nil
}

// Stop implements backend.Driver: it closes the database.
func (d *Driver) Stop(ctx context.Context) error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("close badger database at %q: %w", d.cfg.Dir, err)
	}
	return nil
}

// Open implements backend.Driver. The stored image is loaded into memory;
// a missing path starts empty unless opened read-only.
func (d *Driver) Open(ctx context.Context, path string, readOnly bool) (backend.Backend, error) {
	var image []byte
	err := d.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(path))
		if err != nil {
			return err
		}
		image, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		if readOnly {
			return nil, fmt.Errorf("rrd %q does not exist in badger database", path)
		}
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rrd %q from badger database: %w", path, err)
	}

	d.opens.Add(1)
	return backend.NewBlobBackend(path, image, readOnly, func(ctx context.Context, image []byte) error {
		return d.db.Update(func(txn *badgerdb.Txn) error {
			return txn.Set([]byte(path), image)
		})
	}), nil
}

// Exists implements backend.Driver.
func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	err := d.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(path))
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe rrd %q in badger database: %w", path, err)
	}
	return true, nil
}

// ShouldValidateHeader implements backend.Driver. Stored images only ever
// come from this library, so headers are trusted.
func (d *Driver) ShouldValidateHeader(ctx context.Context, path string) (bool, error) {
	return false, nil
}

// ResolveUniqID implements backend.Driver.
func (d *Driver) ResolveUniqID(id any) (string, error) {
	s, ok := id.(string)
	if !ok {
		return "", fmt.Errorf("cannot resolve %T as a badger rrd path", id)
	}
	return fmt.Sprintf("badger://%s/%s", d.cfg.Dir, s), nil
}

// Delete removes the archive stored under path.
func (d *Driver) Delete(path string) error {
	return d.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(path))
	})
}

// Sync implements backend.Syncer: it fsyncs the database files.
func (d *Driver) Sync(ctx context.Context) error {
	if d.db == nil || d.cfg.InMemory {
		return nil
	}
	if err := d.db.Sync(); err != nil {
		return fmt.Errorf("sync badger database at %q: %w", d.cfg.Dir, err)
	}
	return nil
}

// Stats implements backend.StatsProvider.
func (d *Driver) Stats() map[string]float64 {
	stats := map[string]float64{
		"opens_total": float64(d.opens.Load()),
	}
	if d.db != nil {
		lsm, vlog := d.db.Size()
		stats["lsm_bytes"] = float64(lsm)
		stats["vlog_bytes"] = float64(vlog)
	}
	return stats
}
