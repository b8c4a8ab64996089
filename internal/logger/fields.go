package logger

// Standard field keys for structured logging. Use these consistently so log
// aggregation can query by field.
const (
	KeyFactory  = "factory"   // backend factory name: FILE, MMAP, MEMORY, ...
	KeyBackend  = "backend"   // backend kind for messages below factory level
	KeyPath     = "path"      // storage path the backend is bound to
	KeyState    = "state"     // lifecycle state after a transition
	KeyPhase    = "phase"     // lifecycle phase that produced an outcome: start, stop, purge
	KeyReadOnly = "read_only" // whether a backend was opened read-only
	KeyError    = "error"     // error value attached to a failure message
)
