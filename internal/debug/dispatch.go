package debug

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// dispatch drains one attach's event feed. It returns when the feed closes.
func (s *Session) dispatch(epoch uint64, feed <-chan RawEvent) {
	for raw := range feed {
		ev, err := DecodeEvent(raw)
		if err != nil {
			level := zerolog.WarnLevel
			if errors.Is(err, ErrUnknownEvent) {
				level = zerolog.DebugLevel
			}
			s.log.WithLevel(level).Err(err).Str("type", string(raw.Type)).Msg("dropping event")
			continue
		}
		s.handle(epoch, ev)
	}

	s.mu.RLock()
	current := s.epoch == epoch
	s.mu.RUnlock()
	if current {
		s.handle(epoch, Disconnected{Reason: "event feed closed"})
	}
}

// handle applies one event on the sequence point. Events from an earlier
// attach are dropped.
func (s *Session) handle(epoch uint64, ev Event) {
	s.seq.Lock()
	defer s.seq.Unlock()

	s.mu.RLock()
	current := s.epoch
	closed := s.closed
	s.mu.RUnlock()
	if epoch != current || closed {
		s.log.Warn().
			Str("type", string(ev.Type())).
			Uint64("epoch", epoch).
			Msg("dropping event from ended session")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.commandTimeout)
	defer cancel()

	switch e := ev.(type) {
	case BreakpointActivated:
		if !s.canSuspend(ev) {
			return
		}
		loc := s.resolve(e.Location)
		s.registry.hit(loc)
		s.transition(StateSuspended, loc)
		ev = BreakpointActivated{Location: loc}

	case StepCompleted:
		if !s.canSuspend(ev) {
			return
		}
		loc := s.resolve(e.Location)
		s.transition(StateSuspended, loc)
		ev = StepCompleted{Location: loc}

	case EvaluationResult:
		pending, ok := s.pending[e.RequestID]
		if !ok {
			s.log.Warn().Str("request_id", e.RequestID).Msg("evaluation result for unknown request")
			return
		}
		delete(s.pending, e.RequestID)
		if e.Error != "" {
			pending.complete("", &EvaluationError{
				RequestID:  e.RequestID,
				Expression: pending.expression,
				Message:    e.Error,
			})
		} else {
			pending.complete(e.Value, nil)
		}

	case BreakpointConfirmed:
		loc := s.resolve(e.Location)
		if _, ok := s.registry.confirmed(ctx, s.commands, e.BackendID, loc); !ok {
			return
		}
		s.saveBreakpoints()
		ev = BreakpointConfirmed{BackendID: e.BackendID, Location: loc}

	case BreakpointRejected:
		loc := s.resolve(e.Location)
		if _, ok := s.registry.rejected(loc, e.Reason); !ok {
			return
		}
		ev = BreakpointRejected{Location: loc, Reason: e.Reason}

	case ProcessExited:
		s.log.Info().Int("exit_code", e.ExitCode).Msg("debuggee exited")
		s.teardown("process exited")

	case Disconnected:
		s.teardown(e.Reason)

	default:
		s.log.Debug().Str("type", string(ev.Type())).Msg("unhandled event")
		return
	}

	s.observers.event(ev)
}

// canSuspend reports whether an activation or step may suspend the session.
func (s *Session) canSuspend(ev Event) bool {
	state := s.State()
	if state == StateRunning || state == StateSuspended {
		return true
	}
	s.log.Warn().
		Str("type", string(ev.Type())).
		Stringer("state", state).
		Msg("dropping suspension outside a running session")
	return false
}

// resolve maps a backend location to the editor.
func (s *Session) resolve(loc Location) Location {
	editor, ok := s.backend.Resolver().ToEditor(loc.Backend)
	return Location{Editor: editor, Backend: loc.Backend, Resolved: ok}
}
