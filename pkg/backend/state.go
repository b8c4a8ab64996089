package backend

// State tracks the lifecycle of a single factory instance.
//
// Transitions are monotonic within one instance's life: the only way back to
// StateNew is a brand-new Factory built by the Registry after the previous
// instance terminated or was purged. StateFailed is terminal for the
// instance; only Registry.Purge clears its slot so a fresh instance can be
// built on the next lookup.
type State int32

const (
	// StateNew is the initial state. The factory does no work and holds no
	// resources until started.
	StateNew State = iota

	// StateStarting means the startup hook is in flight.
	StateStarting

	// StateRunning means the factory is operational and may open backends.
	StateRunning

	// StateStopping means the shutdown hook is in flight.
	StateStopping

	// StateTerminated means the factory completed shutdown normally. The
	// Registry transparently replaces terminated instances on lookup.
	StateTerminated

	// StateFailed means a startup or shutdown hook failed. The instance can
	// be neither started nor stopped anymore.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateTerminated:
		return "TERMINATED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
