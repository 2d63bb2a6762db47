package debug

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dshills/stormdbg/internal/debug/location"
)

// EventType identifies a backend event on the wire.
type EventType string

// Event types.
const (
	EventBreakpointActivated EventType = "breakpointActivated"
	EventStepCompleted       EventType = "stepCompleted"
	EventEvaluationResult    EventType = "evaluationResult"
	EventProcessExited       EventType = "processExited"
	EventDisconnected        EventType = "disconnected"
	EventBreakpointConfirmed EventType = "breakpointConfirmed"
	EventBreakpointRejected  EventType = "breakpointRejected"
)

// RawEvent is the transport envelope of an event.
type RawEvent struct {
	Type EventType       `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// Event is a decoded backend event.
type Event interface {
	Type() EventType
}

// BreakpointActivated reports that the debuggee hit a breakpoint.
type BreakpointActivated struct {
	Location Location
}

// StepCompleted reports that a step command finished.
type StepCompleted struct {
	Location Location
}

// EvaluationResult completes a pending evaluation. Error is set when the
// backend could not evaluate the expression.
type EvaluationResult struct {
	RequestID string
	Value     string
	Error     string
}

// ProcessExited reports that the debuggee exited.
type ProcessExited struct {
	ExitCode int
}

// Disconnected reports that the backend closed the session.
type Disconnected struct {
	Reason string
}

// BreakpointConfirmed reports a breakpoint installed in the backend.
type BreakpointConfirmed struct {
	BackendID string
	Location  Location
}

// BreakpointRejected reports a breakpoint the backend refused.
type BreakpointRejected struct {
	Location Location
	Reason   string
}

func (BreakpointActivated) Type() EventType { return EventBreakpointActivated }
func (StepCompleted) Type() EventType       { return EventStepCompleted }
func (EvaluationResult) Type() EventType    { return EventEvaluationResult }
func (ProcessExited) Type() EventType       { return EventProcessExited }
func (Disconnected) Type() EventType        { return EventDisconnected }
func (BreakpointConfirmed) Type() EventType { return EventBreakpointConfirmed }
func (BreakpointRejected) Type() EventType  { return EventBreakpointRejected }

// Wire bodies.
type (
	locationBody struct {
		Location *location.Backend `json:"location"`
	}

	evaluationBody struct {
		RequestID json.RawMessage `json:"requestId"`
		Value     json.RawMessage `json:"value,omitempty"`
		Error     string          `json:"error,omitempty"`
	}

	exitBody struct {
		ExitCode int `json:"exitCode"`
	}

	disconnectBody struct {
		Reason string `json:"reason,omitempty"`
	}

	confirmedBody struct {
		ID       json.RawMessage   `json:"id"`
		Location *location.Backend `json:"location"`
	}

	rejectedBody struct {
		Location *location.Backend `json:"location"`
		Reason   string            `json:"reason,omitempty"`
	}
)

// DecodeEvent decodes a raw event. Locations in the result carry only the
// backend form; the session resolves the editor form.
func DecodeEvent(raw RawEvent) (Event, error) {
	switch raw.Type {
	case EventBreakpointActivated, EventStepCompleted:
		var body locationBody
		if err := unmarshalBody(raw, &body); err != nil {
			return nil, err
		}
		loc, err := backendLocation(raw.Type, body.Location)
		if err != nil {
			return nil, err
		}
		if raw.Type == EventBreakpointActivated {
			return BreakpointActivated{Location: loc}, nil
		}
		return StepCompleted{Location: loc}, nil

	case EventEvaluationResult:
		var body evaluationBody
		if err := unmarshalBody(raw, &body); err != nil {
			return nil, err
		}
		id := scalarString(body.RequestID)
		if id == "" {
			return nil, fmt.Errorf("decode %s: missing requestId", raw.Type)
		}
		return EvaluationResult{RequestID: id, Value: scalarString(body.Value), Error: body.Error}, nil

	case EventProcessExited:
		var body exitBody
		if err := unmarshalBody(raw, &body); err != nil {
			return nil, err
		}
		return ProcessExited{ExitCode: body.ExitCode}, nil

	case EventDisconnected:
		var body disconnectBody
		if err := unmarshalBody(raw, &body); err != nil {
			return nil, err
		}
		return Disconnected{Reason: body.Reason}, nil

	case EventBreakpointConfirmed:
		var body confirmedBody
		if err := unmarshalBody(raw, &body); err != nil {
			return nil, err
		}
		loc, err := backendLocation(raw.Type, body.Location)
		if err != nil {
			return nil, err
		}
		return BreakpointConfirmed{BackendID: scalarString(body.ID), Location: loc}, nil

	case EventBreakpointRejected:
		var body rejectedBody
		if err := unmarshalBody(raw, &body); err != nil {
			return nil, err
		}
		loc, err := backendLocation(raw.Type, body.Location)
		if err != nil {
			return nil, err
		}
		return BreakpointRejected{Location: loc, Reason: body.Reason}, nil
	}

	return nil, fmt.Errorf("decode %q: %w", raw.Type, ErrUnknownEvent)
}

// EncodeEvent builds the wire envelope for an event. Transports that
// translate a foreign protocol use it to feed a session.
func EncodeEvent(e Event) (RawEvent, error) {
	var body any
	switch ev := e.(type) {
	case BreakpointActivated:
		body = locationBody{Location: &ev.Location.Backend}
	case StepCompleted:
		body = locationBody{Location: &ev.Location.Backend}
	case EvaluationResult:
		id, _ := json.Marshal(ev.RequestID)
		b := evaluationBody{RequestID: id, Error: ev.Error}
		if ev.Error == "" {
			b.Value, _ = json.Marshal(ev.Value)
		}
		body = b
	case ProcessExited:
		body = exitBody{ExitCode: ev.ExitCode}
	case Disconnected:
		body = disconnectBody{Reason: ev.Reason}
	case BreakpointConfirmed:
		id, _ := json.Marshal(ev.BackendID)
		body = confirmedBody{ID: id, Location: &ev.Location.Backend}
	case BreakpointRejected:
		body = rejectedBody{Location: &ev.Location.Backend, Reason: ev.Reason}
	default:
		return RawEvent{}, fmt.Errorf("encode %T: %w", e, ErrUnknownEvent)
	}

	content, err := json.Marshal(body)
	if err != nil {
		return RawEvent{}, fmt.Errorf("encode %s: %w", e.Type(), err)
	}
	return RawEvent{Type: e.Type(), Body: content}, nil
}

func unmarshalBody(raw RawEvent, v any) error {
	if len(bytes.TrimSpace(raw.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", raw.Type, err)
	}
	return nil
}

func backendLocation(t EventType, loc *location.Backend) (Location, error) {
	if loc == nil || loc.Target == "" {
		return Location{}, fmt.Errorf("decode %s: missing location", t)
	}
	return Location{Backend: *loc}, nil
}

// scalarString renders a JSON scalar as text: strings are unquoted, numbers
// and other values keep their literal form.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
