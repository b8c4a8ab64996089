package backend

import (
	"context"
	"fmt"
)

// BlobBackend adapts a Buffer to the Backend interface for store kinds that
// keep the whole archive image in memory and flush it to an external store
// on sync and close (badger, s3, postgres). The store supplies one flush
// callback; reads never touch the store after open.
type BlobBackend struct {
	Handle
	buf      *Buffer
	readOnly bool
	flush    func(ctx context.Context, image []byte) error
}

// NewBlobBackend returns a backend over a copy of image. flush is invoked
// with a snapshot of the image whenever dirty content must reach the store;
// it is never invoked for read-only backends.
func NewBlobBackend(path string, image []byte, readOnly bool, flush func(ctx context.Context, image []byte) error) *BlobBackend {
	return &BlobBackend{
		Handle:   NewHandle(path),
		buf:      NewBuffer(image),
		readOnly: readOnly,
		flush:    flush,
	}
}

func (b *BlobBackend) ReadAt(ctx context.Context, p []byte, off int64) error {
	return b.buf.ReadAt(p, off)
}

func (b *BlobBackend) WriteAt(ctx context.Context, p []byte, off int64) error {
	if b.readOnly {
		return fmt.Errorf("rrd %q opened read-only", b.Path())
	}
	return b.buf.WriteAt(p, off)
}

func (b *BlobBackend) Length(ctx context.Context) (int64, error) {
	return b.buf.Len(), nil
}

func (b *BlobBackend) SetLength(ctx context.Context, n int64) error {
	if b.readOnly {
		return fmt.Errorf("rrd %q opened read-only", b.Path())
	}
	return b.buf.SetLen(n)
}

// Sync flushes the image to the store when it changed since the last flush.
func (b *BlobBackend) Sync(ctx context.Context) error {
	if b.readOnly || !b.buf.Dirty() {
		return nil
	}
	if err := b.flush(ctx, b.buf.Bytes()); err != nil {
		return fmt.Errorf("flush rrd %q: %w", b.Path(), err)
	}
	b.buf.MarkClean()
	return nil
}

// Close flushes pending content. The in-memory image is abandoned either
// way; the store keeps the last flushed state.
func (b *BlobBackend) Close(ctx context.Context) error {
	return b.Sync(ctx)
}
