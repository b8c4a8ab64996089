// Package file provides the random-access file backend factory. Each
// archive is one file on disk, read and written in place.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/xuejiangtao/rrd4j/pkg/backend"
)

// Name is the canonical factory name for this kind.
const Name = "FILE"

// Register adds the factory to reg under its canonical name and returns
// that name.
func Register(reg *backend.Registry) string {
	return reg.Register(Name, func() (backend.Driver, error) {
		return New(), nil
	})
}

// Driver opens plain files. It holds no shared resources, so start and
// stop have nothing to do.
type Driver struct {
	opens     atomic.Int64
	openCount atomic.Int64
}

// New returns a file driver.
func New() *Driver {
	return &Driver{}
}

// Start implements backend.Driver.
func (d *Driver) Start(ctx context.Context) error { return nil }

// Stop implements backend.Driver. Individual backends own their file
// handles and close them themselves.
func (d *Driver) Stop(ctx context.Context) error { return nil }

// Open implements backend.Driver. Writable opens create the file when
// missing; read-only opens require it to exist.
func (d *Driver) Open(ctx context.Context, path string, readOnly bool) (backend.Backend, error) {
	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open rrd file %q: %w", path, err)
	}

	d.opens.Add(1)
	d.openCount.Add(1)
	return &fileBackend{
		Handle:   backend.NewHandle(path),
		file:     f,
		readOnly: readOnly,
		driver:   d,
	}, nil
}

// Exists implements backend.Driver.
func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat rrd file %q: %w", path, err)
}

// ShouldValidateHeader implements backend.Driver. Files may come from other
// processes or older runs, so headers are validated.
func (d *Driver) ShouldValidateHeader(ctx context.Context, path string) (bool, error) {
	return true, nil
}

// ResolveUniqID implements backend.Driver: the unique identifier of a file
// archive is its canonical absolute path.
func (d *Driver) ResolveUniqID(id any) (string, error) {
	s, ok := id.(string)
	if !ok {
		return "", fmt.Errorf("cannot resolve %T as an rrd file path", id)
	}
	abs, err := filepath.Abs(filepath.Clean(s))
	if err != nil {
		return "", fmt.Errorf("resolve rrd file path %q: %w", s, err)
	}
	return abs, nil
}

// Stats implements backend.StatsProvider.
func (d *Driver) Stats() map[string]float64 {
	return map[string]float64{
		"opens_total":   float64(d.opens.Load()),
		"open_backends": float64(d.openCount.Load()),
	}
}

type fileBackend struct {
	backend.Handle
	file     *os.File
	readOnly bool
	driver   *Driver
}

func (b *fileBackend) ReadAt(ctx context.Context, p []byte, off int64) error {
	if _, err := b.file.ReadAt(p, off); err != nil {
		return fmt.Errorf("read rrd file %q at %d: %w", b.Path(), off, err)
	}
	return nil
}

func (b *fileBackend) WriteAt(ctx context.Context, p []byte, off int64) error {
	if b.readOnly {
		return fmt.Errorf("rrd file %q opened read-only", b.Path())
	}
	if _, err := b.file.WriteAt(p, off); err != nil {
		return fmt.Errorf("write rrd file %q at %d: %w", b.Path(), off, err)
	}
	return nil
}

func (b *fileBackend) Length(ctx context.Context) (int64, error) {
	fi, err := b.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat rrd file %q: %w", b.Path(), err)
	}
	return fi.Size(), nil
}

func (b *fileBackend) SetLength(ctx context.Context, n int64) error {
	if b.readOnly {
		return fmt.Errorf("rrd file %q opened read-only", b.Path())
	}
	if err := b.file.Truncate(n); err != nil {
		return fmt.Errorf("truncate rrd file %q to %d: %w", b.Path(), n, err)
	}
	return nil
}

func (b *fileBackend) Sync(ctx context.Context) error {
	if b.readOnly {
		return nil
	}
	if err := b.file.Sync(); err != nil {
		return fmt.Errorf("sync rrd file %q: %w", b.Path(), err)
	}
	return nil
}

func (b *fileBackend) Close(ctx context.Context) error {
	b.driver.openCount.Add(-1)
	if err := b.file.Close(); err != nil {
		return fmt.Errorf("close rrd file %q: %w", b.Path(), err)
	}
	return nil
}
