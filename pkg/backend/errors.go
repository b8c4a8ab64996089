package backend

import (
	"errors"
	"fmt"
)

// Common errors returned by the registry and factory core.
var (
	// ErrNotRegistered is returned when a name was never registered.
	ErrNotRegistered = errors.New("backend factory not registered")

	// ErrNotStarted is returned by Open while the factory is not running.
	ErrNotStarted = errors.New("backend factory not started")

	// ErrDefaultInUse is returned by SetDefaultFactory once the current
	// default has served at least one backend. Purge the default first.
	ErrDefaultInUse = errors.New("default backend factory already in use")

	// ErrNoDefault is returned by DefaultFactory on a registry that never
	// had a default selected.
	ErrNoDefault = errors.New("no default backend factory selected")
)

// ConfigError reports that the constructor registered for a factory name
// failed to produce a usable driver.
type ConfigError struct {
	// Name is the factory name whose construction failed.
	Name string

	// Err is the constructor fault, or nil when the constructor returned
	// no driver at all.
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("backend factory %q cannot be built: constructor returned no driver", e.Name)
	}
	return fmt.Sprintf("backend factory %q cannot be built: %v", e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LifecycleError reports a startup or shutdown hook failure. The factory
// that produced it is in StateFailed and can only be cleared through
// Registry.Purge.
type LifecycleError struct {
	// Factory is the name of the failed factory instance.
	Factory string

	// Phase is the lifecycle phase that failed: "start" or "stop".
	Phase string

	// Err is the hook fault.
	Err error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("backend factory %q failed to %s: %v", e.Factory, e.Phase, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }
