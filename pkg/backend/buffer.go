package backend

import (
	"fmt"
	"sync"
)

// Buffer is an in-memory random-access byte image. The blob-oriented
// backend kinds (memory, badger, s3, postgres) keep the whole archive in a
// Buffer and flush it to their store on sync or close.
//
// Reads are bounds-checked against the current length; writes past the end
// grow the image. A Buffer is safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	data  []byte
	dirty bool
}

// NewBuffer returns a Buffer initialized with a copy of data. A nil data
// gives an empty image.
func NewBuffer(data []byte) *Buffer {
	b := &Buffer{}
	if len(data) > 0 {
		b.data = make([]byte, len(data))
		copy(b.data, data)
	}
	return b
}

// ReadAt fills p with the bytes starting at offset off. Reading outside the
// current image is an error.
func (b *Buffer) ReadAt(p []byte, off int64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if off < 0 || off+int64(len(p)) > int64(len(b.data)) {
		return fmt.Errorf("read [%d, %d) outside image of %d bytes",
			off, off+int64(len(p)), len(b.data))
	}
	copy(p, b.data[off:])
	return nil
}

// WriteAt stores p at offset off, growing the image when the write extends
// past the current end.
func (b *Buffer) WriteAt(p []byte, off int64) error {
	if off < 0 {
		return fmt.Errorf("write at negative offset %d", off)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if end := off + int64(len(p)); end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:], p)
	b.dirty = true
	return nil
}

// Len returns the current image size.
func (b *Buffer) Len() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

// SetLen grows or truncates the image to n bytes. Growth zero-fills.
func (b *Buffer) SetLen(n int64) error {
	if n < 0 {
		return fmt.Errorf("set negative image length %d", n)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if n == int64(len(b.data)) {
		return nil
	}
	resized := make([]byte, n)
	copy(resized, b.data)
	b.data = resized
	b.dirty = true
	return nil
}

// Bytes returns a copy of the image.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Dirty reports whether the image changed since the last MarkClean.
func (b *Buffer) Dirty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dirty
}

// MarkClean clears the dirty flag after a successful flush.
func (b *Buffer) MarkClean() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = false
}
