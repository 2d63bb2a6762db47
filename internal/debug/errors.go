package debug

import (
	"errors"
	"fmt"

	"github.com/dshills/stormdbg/internal/debug/location"
)

// Sentinel errors for the debug package.
var (
	// ErrConnection is matched by every *ConnectionError.
	ErrConnection = errors.New("connection failed")

	// ErrIllegalState is returned when a command is not valid in the current state.
	ErrIllegalState = errors.New("illegal state")

	// ErrSessionClosed is returned for commands issued after teardown.
	ErrSessionClosed = errors.New("session closed")

	// ErrEvaluation is matched by every *EvaluationError.
	ErrEvaluation = errors.New("evaluation failed")

	// ErrBreakpointSync is matched by every *SyncError.
	ErrBreakpointSync = errors.New("breakpoint sync failed")

	// ErrBreakpointNotFound is returned when no breakpoint exists at a location.
	ErrBreakpointNotFound = errors.New("breakpoint not found")

	// ErrInvalidLocation is returned for locations without a path or a positive line.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidConfig is returned by backends for incomplete connection parameters.
	ErrInvalidConfig = errors.New("invalid connection parameters")

	// ErrUnknownEvent is returned when decoding an event of an unknown type.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrNoEventFeed is returned when the event transport has no feed after attach.
	ErrNoEventFeed = errors.New("event transport returned no feed")

	// ErrNoTransport is returned by Attach on a session built without transports.
	ErrNoTransport = errors.New("session has no transport")
)

// ConnectionError reports a failed Attach. The session stays disconnected
// and the caller may retry.
type ConnectionError struct {
	Kind string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("attach %s: %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConnection.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// StateError reports a command issued in a state where it is not legal.
// It always matches ErrIllegalState, and also ErrSessionClosed when the
// session has been torn down.
type StateError struct {
	Op     string
	State  State
	Closed bool
}

func (e *StateError) Error() string {
	if e.Closed {
		return fmt.Sprintf("%s: session closed", e.Op)
	}
	return fmt.Sprintf("%s: not allowed while %s", e.Op, e.State)
}

// Is matches ErrIllegalState, and ErrSessionClosed for closed sessions.
func (e *StateError) Is(target error) bool {
	switch target {
	case ErrIllegalState:
		return true
	case ErrSessionClosed:
		return e.Closed
	}
	return false
}

// EvaluationError reports a failed evaluation. Err is ErrSessionClosed when
// the session went away while the evaluation was pending.
type EvaluationError struct {
	RequestID  string
	Expression string
	Message    string
	Err        error
}

func (e *EvaluationError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("evaluate %q: %s", e.Expression, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("evaluate %q: %v", e.Expression, e.Err)
	}
	return fmt.Sprintf("evaluate %q: failed", e.Expression)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrEvaluation.
func (e *EvaluationError) Is(target error) bool { return target == ErrEvaluation }

// SyncError is attached to a breakpoint the backend rejected or the
// transport failed to deliver. It is not fatal to the session.
type SyncError struct {
	Op       string
	Location location.Editor
	Reason   string
	Err      error
}

func (e *SyncError) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("%s breakpoint %s: %s", e.Op, e.Location, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s breakpoint %s: %v", e.Op, e.Location, e.Err)
	}
	return fmt.Sprintf("%s breakpoint %s: rejected", e.Op, e.Location)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBreakpointSync.
func (e *SyncError) Is(target error) bool { return target == ErrBreakpointSync }
