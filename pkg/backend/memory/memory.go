// Package memory provides the in-memory backend factory. Archives live in
// process memory and are lost when the process exits; the kind is extremely
// fast and suits tests and short-lived tooling.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xuejiangtao/rrd4j/pkg/backend"
)

// Name is the canonical factory name for this kind.
const Name = "MEMORY"

// Register adds the factory to reg under its canonical name and returns
// that name.
func Register(reg *backend.Registry) string {
	return reg.Register(Name, func() (backend.Driver, error) {
		return New(), nil
	})
}

// Driver keeps one byte image per path. Stopping the factory drops all
// content, matching the volatile nature of the kind.
type Driver struct {
	mu    sync.RWMutex
	blobs map[string]*backend.Buffer
	opens atomic.Int64
}

// New returns an empty in-memory driver.
func New() *Driver {
	return &Driver{blobs: make(map[string]*backend.Buffer)}
}

// Start implements backend.Driver. Nothing to acquire.
func (d *Driver) Start(ctx context.Context) error { return nil }

// Stop implements backend.Driver. All stored images are dropped.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blobs = make(map[string]*backend.Buffer)
	return nil
}

// Open returns a backend over the image stored under path, creating an
// empty image on first open. Opening a missing path read-only fails.
func (d *Driver) Open(ctx context.Context, path string, readOnly bool) (backend.Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.blobs[path]
	if !ok {
		if readOnly {
			return nil, fmt.Errorf("in-memory rrd %q does not exist", path)
		}
		buf = backend.NewBuffer(nil)
		d.blobs[path] = buf
	}
	d.opens.Add(1)

	return &memBackend{
		Handle:   backend.NewHandle(path),
		buf:      buf,
		readOnly: readOnly,
	}, nil
}

// Exists implements backend.Driver.
func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.blobs[path]
	return ok, nil
}

// ShouldValidateHeader implements backend.Driver. In-memory images are
// always freshly built by this process, so headers are trusted.
func (d *Driver) ShouldValidateHeader(ctx context.Context, path string) (bool, error) {
	return false, nil
}

// ResolveUniqID implements backend.Driver. Paths are opaque keys here, so
// the identifier resolves to itself.
func (d *Driver) ResolveUniqID(id any) (string, error) {
	s, ok := id.(string)
	if !ok {
		return "", fmt.Errorf("cannot resolve %T as an in-memory rrd path", id)
	}
	return s, nil
}

// Delete drops the image stored under path. It reports whether an image
// existed.
func (d *Driver) Delete(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.blobs[path]
	delete(d.blobs, path)
	return ok
}

// Stats implements backend.StatsProvider.
func (d *Driver) Stats() map[string]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var bytes int64
	for _, buf := range d.blobs {
		bytes += buf.Len()
	}
	return map[string]float64{
		"archives":    float64(len(d.blobs)),
		"bytes":       float64(bytes),
		"opens_total": float64(d.opens.Load()),
	}
}

type memBackend struct {
	backend.Handle
	buf      *backend.Buffer
	readOnly bool
}

func (b *memBackend) ReadAt(ctx context.Context, p []byte, off int64) error {
	return b.buf.ReadAt(p, off)
}

func (b *memBackend) WriteAt(ctx context.Context, p []byte, off int64) error {
	if b.readOnly {
		return fmt.Errorf("in-memory rrd %q opened read-only", b.Path())
	}
	return b.buf.WriteAt(p, off)
}

func (b *memBackend) Length(ctx context.Context) (int64, error) {
	return b.buf.Len(), nil
}

func (b *memBackend) SetLength(ctx context.Context, n int64) error {
	if b.readOnly {
		return fmt.Errorf("in-memory rrd %q opened read-only", b.Path())
	}
	return b.buf.SetLen(n)
}

// Sync is a no-op: memory is as durable as this kind gets.
func (b *memBackend) Sync(ctx context.Context) error { return nil }

// Close is a no-op: the image stays in the driver until Delete or Stop.
func (b *memBackend) Close(ctx context.Context) error { return nil }
