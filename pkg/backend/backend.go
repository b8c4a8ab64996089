// Package backend implements the factory registry and lifecycle core that
// sits beneath a round-robin database: it decides, by name, which storage
// implementation opens a given data path and governs that implementation's
// start/stop lifecycle.
//
// The package owns three pieces of shared state and nothing else: the
// name-to-instance registry map, the per-instance lifecycle state, and the
// default-factory selection. The concrete storage kinds live in the
// subpackages (file, mmap, memory, badger, s3, postgres) and plug in through
// the Driver contract.
package backend

import "context"

// Backend is a concrete storage handle bound to one path. Backends are
// manufactured by a running Factory via Open and perform the actual I/O.
//
// A Backend addresses its storage as a flat byte image with random access.
// Concurrency safety of a single Backend, and of several Backends open on
// the same path, is the implementation's responsibility, not this core's.
type Backend interface {
	// SetFactory binds the back-reference to the factory that opened this
	// backend. Factory.Open calls it exactly once before returning the
	// backend to the caller.
	SetFactory(f *Factory)

	// Factory returns the factory this backend was opened by, or nil before
	// SetFactory is called.
	Factory() *Factory

	// Path returns the storage path this backend is bound to.
	Path() string

	// ReadAt reads len(p) bytes starting at offset off.
	ReadAt(ctx context.Context, p []byte, off int64) error

	// WriteAt writes len(p) bytes starting at offset off. Implementations
	// reject writes on backends opened read-only.
	WriteAt(ctx context.Context, p []byte, off int64) error

	// Length returns the current size of the byte image.
	Length(ctx context.Context) (int64, error)

	// SetLength grows or truncates the byte image to n bytes.
	SetLength(ctx context.Context, n int64) error

	// Sync makes pending writes durable.
	Sync(ctx context.Context) error

	// Close releases the backend. The byte image stays in storage unless the
	// storage kind is volatile by nature.
	Close(ctx context.Context) error
}

// Driver supplies the storage-kind specific behavior behind a Factory. A
// driver instance is built by the constructor registered for its name and
// lives as long as the Factory wrapping it.
//
// Drivers never see lifecycle state; the Factory gates every call so that
// Open only reaches a driver while it is running, Start runs at most once
// per instance, and Stop runs only from the running state.
type Driver interface {
	// Start is the startup hook, invoked while the factory is in
	// StateStarting. A nil return moves the factory to StateRunning; any
	// error moves it to StateFailed.
	Start(ctx context.Context) error

	// Stop is the shutdown hook, invoked while the factory is in
	// StateStopping. A nil return moves the factory to StateTerminated; any
	// error moves it to StateFailed.
	Stop(ctx context.Context) error

	// Open creates a backend bound to path. I/O errors propagate to the
	// caller unchanged.
	Open(ctx context.Context, path string, readOnly bool) (Backend, error)

	// Exists reports whether storage with the given path already exists.
	Exists(ctx context.Context, path string) (bool, error)

	// ShouldValidateHeader reports whether the archive engine should
	// validate the header of storage opened at path.
	ShouldValidateHeader(ctx context.Context, path string) (bool, error)

	// ResolveUniqID resolves an opaque backend identifier to a unique
	// string, such as the canonical path of a file or a fully qualified URL.
	ResolveUniqID(id any) (string, error)
}

// Syncer is implemented by drivers that buffer writes and can force them
// durable. Factory.Sync is a no-op for drivers without it.
type Syncer interface {
	Sync(ctx context.Context) error
}

// StatsProvider is implemented by drivers that expose informational
// counters. Factory.Stats returns an empty map for drivers without it.
type StatsProvider interface {
	Stats() map[string]float64
}

// Handle carries the path identity and factory back-reference every backend
// implementation needs. Embed it and the SetFactory, Factory and Path
// methods of the Backend interface come for free.
type Handle struct {
	factory *Factory
	path    string
}

// NewHandle returns a Handle bound to path.
func NewHandle(path string) Handle {
	return Handle{path: path}
}

// SetFactory binds the factory back-reference.
func (h *Handle) SetFactory(f *Factory) { h.factory = f }

// Factory returns the bound factory, or nil before binding.
func (h *Handle) Factory() *Factory { return h.factory }

// Path returns the storage path.
func (h *Handle) Path() string { return h.path }
