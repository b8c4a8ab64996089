package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xuejiangtao/rrd4j/internal/logger"
)

// Factory is the singleton lifecycle-managed instance for one backend kind.
// Instances are built lazily by the Registry and must be started before they
// can open backends:
//
//	f, err := reg.Factory("MEMORY")
//	...
//	ok, err := f.Start(ctx)
//	...
//	b, err := f.Open(ctx, "db1", false)
//
// Start and Stop are serialized by a per-instance lock. The lock is never
// held during Open, so opens run concurrently once the factory is running.
type Factory struct {
	name   string
	driver Driver

	// lifecycle serializes Start and Stop on this instance.
	lifecycle sync.Mutex

	// state holds a State value. It is read lock-free by Open and State.
	state atomic.Int32

	// created latches once this instance has served a backend. It is never
	// cleared; a replacement instance starts fresh.
	created atomic.Bool
}

func newFactory(name string, driver Driver) *Factory {
	f := &Factory{name: name, driver: driver}
	f.state.Store(int32(StateNew))
	return f
}

// Name returns the factory name this instance was registered under.
func (f *Factory) Name() string { return f.name }

// State returns the current lifecycle state.
func (f *Factory) State() State { return State(f.state.Load()) }

// Created reports whether this instance has served at least one backend.
// Once true it stays true for the life of the instance.
func (f *Factory) Created() bool { return f.created.Load() }

// Start moves the factory from StateNew to StateRunning through the
// driver's startup hook. It returns true when the factory is running
// afterwards, including when it already was; a second Start on a running
// factory does not re-invoke the hook. From any other state Start returns
// false and performs no action: a failed instance is not recovered here,
// only Registry.Purge clears it.
func (f *Factory) Start(ctx context.Context) (bool, error) {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	if st := f.State(); st != StateNew {
		return st == StateRunning, nil
	}

	f.state.Store(int32(StateStarting))
	if err := f.driver.Start(ctx); err != nil {
		f.state.Store(int32(StateFailed))
		logger.Error("backend factory start failed",
			logger.KeyFactory, f.name, logger.KeyError, err)
		return false, &LifecycleError{Factory: f.name, Phase: "start", Err: err}
	}
	f.state.Store(int32(StateRunning))
	logger.Debug("backend factory started", logger.KeyFactory, f.name)
	return true, nil
}

// Stop moves the factory from StateRunning to StateTerminated through the
// driver's shutdown hook. Sync always runs first, whatever the current
// state. When the factory is not running, Stop returns true only if it
// already terminated. A failed hook moves the factory to StateFailed and
// the fault is returned.
func (f *Factory) Stop(ctx context.Context) (bool, error) {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	if err := f.Sync(ctx); err != nil {
		return false, fmt.Errorf("sync backend factory %q: %w", f.name, err)
	}

	if st := f.State(); st != StateRunning {
		return st == StateTerminated, nil
	}

	f.state.Store(int32(StateStopping))
	if err := f.driver.Stop(ctx); err != nil {
		f.state.Store(int32(StateFailed))
		logger.Error("backend factory stop failed",
			logger.KeyFactory, f.name, logger.KeyError, err)
		return false, &LifecycleError{Factory: f.name, Phase: "stop", Err: err}
	}
	f.state.Store(int32(StateTerminated))
	logger.Debug("backend factory stopped", logger.KeyFactory, f.name)
	return true, nil
}

// Open returns a backend bound to path. The factory must be running; any
// other state fails with ErrNotStarted regardless of path. On success the
// backend's factory back-reference is bound and the instance is marked as
// having served a backend, which freezes its eligibility to be swapped out
// as the default.
func (f *Factory) Open(ctx context.Context, path string, readOnly bool) (Backend, error) {
	if f.State() != StateRunning {
		return nil, fmt.Errorf("open %q (factory %q, state %s): %w",
			path, f.name, f.State(), ErrNotStarted)
	}

	b, err := f.driver.Open(ctx, path, readOnly)
	if err != nil {
		return nil, err
	}
	b.SetFactory(f)
	f.created.Store(true)

	logger.Debug("backend opened",
		logger.KeyFactory, f.name, logger.KeyPath, path, logger.KeyReadOnly, readOnly)
	return b, nil
}

// Exists reports whether storage with the given path already exists.
func (f *Factory) Exists(ctx context.Context, path string) (bool, error) {
	return f.driver.Exists(ctx, path)
}

// ShouldValidateHeader reports whether headers of storage opened through
// this factory should be validated.
func (f *Factory) ShouldValidateHeader(ctx context.Context, path string) (bool, error) {
	return f.driver.ShouldValidateHeader(ctx, path)
}

// ResolveUniqID resolves an opaque backend identifier to a unique string.
func (f *Factory) ResolveUniqID(id any) (string, error) {
	return f.driver.ResolveUniqID(id)
}

// Sync forces pending writes durable. Drivers that do not buffer expose no
// Syncer and Sync does nothing.
func (f *Factory) Sync(ctx context.Context) error {
	if s, ok := f.driver.(Syncer); ok {
		return s.Sync(ctx)
	}
	return nil
}

// Stats returns informational driver counters. It is not part of the
// lifecycle contract and may be called in any state.
func (f *Factory) Stats() map[string]float64 {
	if p, ok := f.driver.(StatsProvider); ok {
		return p.Stats()
	}
	return map[string]float64{}
}
