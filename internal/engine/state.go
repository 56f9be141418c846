package engine

// State is the worker lifecycle state.
type State int32

const (
	// StateUninitialized means no store exists yet.
	StateUninitialized State = iota
	// StateInitializing means an INIT is being processed.
	StateInitializing
	// StateReady means the store is open and serving.
	StateReady
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
