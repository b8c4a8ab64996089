// Package mmap provides the memory-mapped file backend factory. Archives
// are files on disk accessed through a shared mapping, so updates go through
// the page cache and the OS flushes dirty pages asynchronously. This is the
// default backend kind.
//
// On platforms without the mapping support wired in (see map_windows.go)
// the backend degrades to plain file I/O with identical semantics.
package mmap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/xuejiangtao/rrd4j/pkg/backend"
)

// Name is the canonical factory name for this kind.
const Name = "MMAP"

// Register adds the factory to reg under its canonical name and returns
// that name.
func Register(reg *backend.Registry) string {
	return reg.Register(Name, func() (backend.Driver, error) {
		return New(), nil
	})
}

// Driver opens memory-mapped files. Like the plain file kind it holds no
// shared resources.
type Driver struct {
	opens     atomic.Int64
	openCount atomic.Int64
	mapped    atomic.Int64 // bytes currently mapped across backends
}

// New returns an mmap driver.
func New() *Driver {
	return &Driver{}
}

// Start implements backend.Driver.
func (d *Driver) Start(ctx context.Context) error { return nil }

// Stop implements backend.Driver.
func (d *Driver) Stop(ctx context.Context) error { return nil }

// Open implements backend.Driver. The file is mapped at its current size;
// an empty file stays unmapped until SetLength establishes one.
func (d *Driver) Open(ctx context.Context, path string, readOnly bool) (backend.Backend, error) {
	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open rrd file %q: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat rrd file %q: %w", path, err)
	}

	b := &mmapBackend{
		Handle:   backend.NewHandle(path),
		file:     f,
		readOnly: readOnly,
		size:     fi.Size(),
		driver:   d,
	}
	if b.size > 0 {
		if err := b.remap(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	d.opens.Add(1)
	d.openCount.Add(1)
	return b, nil
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

// ShouldValidateHeader implements backend.Driver.
func (d *Driver) ShouldValidateHeader(ctx context.Context, path string) (bool, error) {
	return true, nil
}

// ResolveUniqID implements backend.Driver.
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
		"mapped_bytes":  float64(d.mapped.Load()),
	}
}

// mmapBackend is one mapped archive. region is nil while the file is empty
// or when the platform provides no mapping; all accesses then fall back to
// the file handle.
type mmapBackend struct {
	backend.Handle
	mu       sync.Mutex
	file     *os.File
	region   []byte
	size     int64
	readOnly bool
	closed   bool
	driver   *Driver
}

// remap drops the current mapping and establishes one at b.size. Caller
// holds b.mu (or is the only owner during Open).
func (b *mmapBackend) remap() error {
	if b.region != nil {
		b.driver.mapped.Add(-int64(len(b.region)))
		if err := unmapRegion(b.region); err != nil {
			return fmt.Errorf("unmap rrd file %q: %w", b.Path(), err)
		}
		b.region = nil
	}
	if b.size == 0 {
		return nil
	}
	region, err := mapRegion(b.file, b.size, b.readOnly)
	if err != nil {
		return fmt.Errorf("map rrd file %q: %w", b.Path(), err)
	}
	b.region = region
	if region != nil {
		b.driver.mapped.Add(int64(len(region)))
	}
	return nil
}

func (b *mmapBackend) ReadAt(ctx context.Context, p []byte, off int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("rrd file %q is closed", b.Path())
	}
	if b.region == nil {
		if _, err := b.file.ReadAt(p, off); err != nil {
			return fmt.Errorf("read rrd file %q at %d: %w", b.Path(), off, err)
		}
		return nil
	}
	if off < 0 || off+int64(len(p)) > int64(len(b.region)) {
		return fmt.Errorf("read [%d, %d) outside rrd file %q of %d bytes",
			off, off+int64(len(p)), b.Path(), len(b.region))
	}
	copy(p, b.region[off:])
	return nil
}

func (b *mmapBackend) WriteAt(ctx context.Context, p []byte, off int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("rrd file %q is closed", b.Path())
	}
	if b.readOnly {
		return fmt.Errorf("rrd file %q opened read-only", b.Path())
	}
	if b.region == nil {
		if _, err := b.file.WriteAt(p, off); err != nil {
			return fmt.Errorf("write rrd file %q at %d: %w", b.Path(), off, err)
		}
		return nil
	}
	if off < 0 || off+int64(len(p)) > int64(len(b.region)) {
		return fmt.Errorf("write [%d, %d) outside rrd file %q of %d bytes; grow it with SetLength first",
			off, off+int64(len(p)), b.Path(), len(b.region))
	}
	copy(b.region[off:], p)
	return nil
}

func (b *mmapBackend) Length(ctx context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size, nil
}

func (b *mmapBackend) SetLength(ctx context.Context, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("rrd file %q is closed", b.Path())
	}
	if b.readOnly {
		return fmt.Errorf("rrd file %q opened read-only", b.Path())
	}
	if n == b.size {
		return nil
	}

	// The mapping cannot outlive the resize.
	if b.region != nil {
		b.driver.mapped.Add(-int64(len(b.region)))
		if err := unmapRegion(b.region); err != nil {
			return fmt.Errorf("unmap rrd file %q: %w", b.Path(), err)
		}
		b.region = nil
	}
	if err := b.file.Truncate(n); err != nil {
		return fmt.Errorf("truncate rrd file %q to %d: %w", b.Path(), n, err)
	}
	b.size = n
	return b.remap()
}

func (b *mmapBackend) Sync(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.readOnly {
		return nil
	}
	if b.region != nil {
		if err := syncRegion(b.region); err != nil {
			return fmt.Errorf("msync rrd file %q: %w", b.Path(), err)
		}
		return nil
	}
	if err := b.file.Sync(); err != nil {
		return fmt.Errorf("sync rrd file %q: %w", b.Path(), err)
	}
	return nil
}

func (b *mmapBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.driver.openCount.Add(-1)

	var firstErr error
	if b.region != nil {
		if !b.readOnly {
			if err := syncRegion(b.region); err != nil {
				firstErr = fmt.Errorf("msync rrd file %q: %w", b.Path(), err)
			}
		}
		b.driver.mapped.Add(-int64(len(b.region)))
		if err := unmapRegion(b.region); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unmap rrd file %q: %w", b.Path(), err)
		}
		b.region = nil
	}
	if err := b.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close rrd file %q: %w", b.Path(), err)
	}
	return firstErr
}
