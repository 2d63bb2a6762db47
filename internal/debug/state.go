package debug

import "github.com/dshills/stormdbg/internal/debug/location"

// State is the execution state of a session.
type State int

const (
	// StateDisconnected is the initial state and the state after teardown.
	StateDisconnected State = iota
	// StateConnecting is while Attach talks to the backend.
	StateConnecting
	// StateRunning is when the debuggee executes.
	StateRunning
	// StateSuspended is when the debuggee is stopped at a location.
	StateSuspended
	// StateDisconnecting is while the session is torn down.
	StateDisconnecting
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// transitions is the legal transition table. Suspended to Suspended moves
// the current location without resuming.
var transitions = map[State][]State{
	StateDisconnected:  {StateConnecting},
	StateConnecting:    {StateRunning, StateDisconnected},
	StateRunning:       {StateSuspended, StateDisconnecting},
	StateSuspended:     {StateRunning, StateSuspended, StateDisconnecting},
	StateDisconnecting: {StateDisconnected},
}

// CanTransition reports whether the state machine may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Location is a suspended position in both representations.
type Location struct {
	// Editor is the editor position, or the raw backend target when unresolved.
	Editor location.Editor `json:"editor"`

	// Backend is the position as reported by the backend.
	Backend location.Backend `json:"backend"`

	// Resolved reports whether Editor names a project file.
	Resolved bool `json:"resolved"`
}

// Transition describes one state change. From equals To (both Suspended)
// when the debuggee stopped again without resuming.
type Transition struct {
	SessionID string
	From      State
	To        State

	// Location is the suspended location when To is StateSuspended.
	Location Location
}
