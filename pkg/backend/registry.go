package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xuejiangtao/rrd4j/internal/logger"
)

// Constructor builds the driver behind a factory instance. Registered
// constructors take no arguments; kinds that need configuration register a
// closure capturing it.
type Constructor func() (Driver, error)

// slot is the per-name registry entry holding the constructor and at most
// one live factory instance. Its lock serializes construction and purge for
// one name, so first-time lookups for the same name never race into
// duplicate construction and lookups for different names never contend.
type slot struct {
	mu        sync.Mutex
	construct Constructor
	factory   *Factory
}

// Registry maps factory names to lazily-built singleton instances and
// carries the process-wide default selection. The zero value is not usable;
// call NewRegistry. Registries are independent, so tests build isolated
// ones instead of sharing ambient global state.
type Registry struct {
	mu    sync.RWMutex
	slots map[string]*slot

	// defaultMu guards the default selection independently of per-name slot
	// locks, so resolving the default never blocks unrelated lookups.
	defaultMu      sync.Mutex
	defaultName    string
	defaultFactory *Factory
}

// NewRegistry returns an empty registry with no default selected.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*slot)}
}

// Register adds a constructor under name and returns name so calls can be
// chained into SetDefaultFactory. The first registration for a name wins;
// registering the same name again is a silent no-op.
func (r *Registry) Register(name string, construct Constructor) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[name]; !ok {
		r.slots[name] = &slot{construct: construct}
		logger.Debug("backend factory registered", logger.KeyFactory, name)
	}
	return name
}

// RegisterAndSetDefault registers the constructor under name and selects it
// as the default. It fails with ErrDefaultInUse under the same conditions
// as SetDefaultFactory.
func (r *Registry) RegisterAndSetDefault(name string, construct Constructor) error {
	return r.SetDefaultFactory(r.Register(name, construct))
}

// Names returns the registered factory names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.slots))
	for name := range r.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Built returns the live factory instances in name order. Unlike Factory
// it never constructs anything, so observers such as metrics collectors
// can walk the registry without side effects.
func (r *Registry) Built() []*Factory {
	var out []*Factory
	for _, name := range r.Names() {
		s, ok := r.slot(name)
		if !ok {
			continue
		}
		s.mu.Lock()
		if s.factory != nil {
			out = append(out, s.factory)
		}
		s.mu.Unlock()
	}
	return out
}

func (r *Registry) slot(name string) (*slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[name]
	return s, ok
}

// Factory returns the singleton instance registered under name, building it
// on first access. An instance that terminated is discarded and replaced
// transparently. Unregistered names fail with ErrNotRegistered; a failing
// constructor surfaces as a ConfigError carrying the offending name.
func (r *Registry) Factory(name string) (*Factory, error) {
	s, ok := r.slot(name)
	if !ok {
		return nil, fmt.Errorf("backend factory %q: %w", name, ErrNotRegistered)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.factory != nil && s.factory.State() == StateTerminated {
		s.factory = nil
	}
	if s.factory == nil {
		driver, err := s.construct()
		if err != nil {
			return nil, &ConfigError{Name: name, Err: err}
		}
		if driver == nil {
			return nil, &ConfigError{Name: name}
		}
		s.factory = newFactory(name, driver)
		logger.Debug("backend factory instance built", logger.KeyFactory, name)
	}
	return s.factory, nil
}

// Purge stops and drops the instance registered under name, even when the
// stop hook fails: the slot is cleared on every exit path, and a purged
// default also has the default cache cleared so the next DefaultFactory
// re-resolves. The stop outcome and any fault are still reported after the
// cleanup; purging a name with no live instance reports a clean stop.
//
// Purge is the only way to get rid of an instance stuck in StateFailed.
func (r *Registry) Purge(ctx context.Context, name string) (bool, error) {
	s, ok := r.slot(name)
	if !ok {
		return false, fmt.Errorf("backend factory %q: %w", name, ErrNotRegistered)
	}

	s.mu.Lock()
	f := s.factory
	if f == nil {
		s.mu.Unlock()
		return true, nil
	}

	// Deferred in reverse order: clear the slot while still holding its
	// lock, release the lock, then drop the default cache. The default
	// lock is only taken after the slot lock is released, matching the
	// ordering DefaultFactory uses.
	defer r.forgetDefault(f)
	defer s.mu.Unlock()
	defer func() { s.factory = nil }()

	clean, err := f.Stop(ctx)
	if err != nil {
		logger.Warn("backend factory purged after stop fault",
			logger.KeyFactory, name, logger.KeyPhase, "purge", logger.KeyError, err)
	} else {
		logger.Debug("backend factory purged", logger.KeyFactory, name)
	}
	return clean, err
}

// PurgeAll stops and drops every registered instance. It is the documented
// process-exit hook: every slot is processed even when individual stops
// fail, and the faults are joined and returned afterwards.
func (r *Registry) PurgeAll(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		if _, err := r.Purge(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// forgetDefault clears the default cache if it points at f.
func (r *Registry) forgetDefault(f *Factory) {
	r.defaultMu.Lock()
	defer r.defaultMu.Unlock()
	if r.defaultFactory == f {
		r.defaultFactory = nil
	}
}

// DefaultFactory returns the instance for the currently selected default
// name, resolving and caching it on first access. A cached instance that
// terminated is re-resolved, mirroring the transparent replacement Factory
// performs. Fails with ErrNoDefault when no default was ever selected.
func (r *Registry) DefaultFactory() (*Factory, error) {
	r.defaultMu.Lock()
	defer r.defaultMu.Unlock()

	if r.defaultFactory != nil && r.defaultFactory.State() != StateTerminated {
		return r.defaultFactory, nil
	}
	if r.defaultName == "" {
		return nil, ErrNoDefault
	}

	f, err := r.Factory(r.defaultName)
	if err != nil {
		return nil, err
	}
	r.defaultFactory = f
	return f, nil
}

// SetDefaultFactory selects the factory used when callers do not name one.
// The selection can change only while the currently cached default has
// never served a backend; afterwards it fails with ErrDefaultInUse, since
// switching it would silently change behavior for future opens. Purge the
// default to unfreeze the selection.
//
// The name is not validated here: like Register, selection is independent
// of construction, and an unknown name surfaces as ErrNotRegistered on the
// next DefaultFactory call.
func (r *Registry) SetDefaultFactory(name string) error {
	r.defaultMu.Lock()
	defer r.defaultMu.Unlock()

	if r.defaultFactory != nil && r.defaultFactory.Created() {
		return fmt.Errorf("switch default backend factory to %q: %w", name, ErrDefaultInUse)
	}
	r.defaultName = name
	r.defaultFactory = nil
	return nil
}
