package debug

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dshills/stormdbg/internal/debug/descriptor"
	"github.com/dshills/stormdbg/internal/debug/location"
)

// DefaultCommandTimeout bounds transport calls the session makes on its own,
// such as withdrawing a breakpoint or disconnecting on Close.
const DefaultCommandTimeout = 10 * time.Second

// Session is one debugging session against one backend.
type Session struct {
	backend  Backend
	commands CommandTransport
	events   EventTransport
	store    BreakpointStore
	log      zerolog.Logger

	commandTimeout time.Duration

	// seq is the sequence point: every command and every event handler
	// runs while holding it.
	seq sync.Mutex

	// mu guards the fields below so that observers and other goroutines
	// can read them while seq is held.
	mu       sync.RWMutex
	id       string
	state    State
	location Location
	params   map[string]string
	epoch    uint64
	torn     bool
	closed   bool

	pending   map[string]*Evaluation
	registry  *Registry
	observers observerList
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithStore persists breakpoints through store. Breakpoints are loaded when
// the session is created and saved after every change.
func WithStore(store BreakpointStore) Option {
	return func(s *Session) {
		s.store = store
	}
}

// WithCommandTimeout sets the timeout for transport calls the session
// issues on its own.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.commandTimeout = d
		}
	}
}

// NewSession creates a disconnected session. The same object may implement
// both transports. A session without transports can only edit breakpoints.
func NewSession(backend Backend, commands CommandTransport, events EventTransport, opts ...Option) *Session {
	s := &Session{
		backend:        backend,
		commands:       commands,
		events:         events,
		log:            log.With().Str("component", "debug").Logger(),
		commandTimeout: DefaultCommandTimeout,
		state:          StateDisconnected,
		pending:        make(map[string]*Evaluation),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("backend", backend.Kind()).Logger()
	s.registry = newRegistry(backend.Resolver(), s.log)

	if s.store != nil {
		saved, err := s.store.Load(backend.Kind())
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to load breakpoints")
		} else {
			s.registry.restore(saved)
		}
	}
	return s
}

// ID returns the id of the current or last attach, empty before the first.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Kind returns the backend kind.
func (s *Session) Kind() string {
	return s.backend.Kind()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Location returns the suspended location. ok is false unless suspended.
func (s *Session) Location() (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateSuspended {
		return Location{}, false
	}
	return s.location, true
}

// Descriptor returns the presentation label built from the connection
// parameters of the current or last attach.
func (s *Session) Descriptor() descriptor.Descriptor {
	s.mu.RLock()
	params := s.params
	s.mu.RUnlock()
	return s.backend.Descriptor(params)
}

// Breakpoints returns the reconciled breakpoint set ordered by location.
func (s *Session) Breakpoints() []Breakpoint {
	return s.registry.List()
}

// Breakpoint returns the breakpoint at loc.
func (s *Session) Breakpoint(loc location.Editor) (Breakpoint, bool) {
	return s.registry.Get(loc)
}

// AddObserver registers an observer and returns its id.
func (s *Session) AddObserver(o Observer) int {
	return s.observers.add(o)
}

// RemoveObserver deregisters an observer. It reports whether the id was known.
func (s *Session) RemoveObserver(id int) bool {
	return s.observers.remove(id)
}

// Attach connects to the backend. On failure the session stays disconnected
// and the returned error is a *ConnectionError.
func (s *Session) Attach(ctx context.Context, params map[string]string) error {
	s.seq.Lock()
	defer s.seq.Unlock()

	if err := s.require("attach", StateDisconnected); err != nil {
		return err
	}

	if s.commands == nil || s.events == nil {
		return &ConnectionError{Kind: s.backend.Kind(), Err: ErrNoTransport}
	}

	cfg, err := s.backend.ParseConfig(params)
	if err != nil {
		return &ConnectionError{Kind: s.backend.Kind(), Err: err}
	}
	wire := cfg.Params()

	s.mu.Lock()
	s.id = uuid.NewString()
	s.params = maps.Clone(wire)
	s.mu.Unlock()

	s.transition(StateConnecting, Location{})

	if err := s.commands.Attach(ctx, wire); err != nil {
		s.transition(StateDisconnected, Location{})
		return &ConnectionError{Kind: s.backend.Kind(), Err: err}
	}

	feed := s.events.Events()
	if feed == nil {
		s.disconnectQuietly()
		s.transition(StateDisconnected, Location{})
		return &ConnectionError{Kind: s.backend.Kind(), Err: ErrNoEventFeed}
	}

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.torn = false
	s.mu.Unlock()

	s.registry.resync(ctx, s.commands)
	s.transition(StateRunning, Location{})
	s.saveBreakpoints()

	s.log.Info().
		Str("session_id", s.ID()).
		Str("address", s.Descriptor().Address).
		Msg("session attached")

	go s.dispatch(epoch, feed)
	return nil
}

// Resume continues execution.
func (s *Session) Resume(ctx context.Context) error {
	return s.runCommand(ctx, "resume", CommandTransport.Resume)
}

// StepInto steps into the next call.
func (s *Session) StepInto(ctx context.Context) error {
	return s.runCommand(ctx, "step into", CommandTransport.StepInto)
}

// StepOver steps over the next line.
func (s *Session) StepOver(ctx context.Context) error {
	return s.runCommand(ctx, "step over", CommandTransport.StepOver)
}

// StepOut runs until the current frame returns.
func (s *Session) StepOut(ctx context.Context) error {
	return s.runCommand(ctx, "step out", CommandTransport.StepOut)
}

func (s *Session) runCommand(ctx context.Context, op string, call func(CommandTransport, context.Context) error) error {
	s.seq.Lock()
	defer s.seq.Unlock()

	if err := s.require(op, StateSuspended); err != nil {
		return err
	}
	if err := call(s.commands, ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.transition(StateRunning, Location{})
	return nil
}

// Evaluate submits an expression in the suspended frame. The returned
// evaluation completes when the backend reports the result; it fails with an
// *EvaluationError on backend failure or teardown.
func (s *Session) Evaluate(ctx context.Context, expression string) (*Evaluation, error) {
	s.seq.Lock()
	defer s.seq.Unlock()

	if err := s.require("evaluate", StateSuspended); err != nil {
		return nil, err
	}

	requestID, err := s.commands.Evaluate(ctx, expression)
	if err != nil {
		return nil, &EvaluationError{Expression: expression, Err: err}
	}

	if previous, ok := s.pending[requestID]; ok {
		previous.complete("", &EvaluationError{
			RequestID:  requestID,
			Expression: previous.expression,
			Message:    "request id reused by backend",
		})
	}
	ev := newEvaluation(requestID, expression)
	s.pending[requestID] = ev
	return ev, nil
}

// Disconnect ends the session. The session is torn down even when the
// transport reports an error, which is then returned.
func (s *Session) Disconnect(ctx context.Context) error {
	s.seq.Lock()
	defer s.seq.Unlock()

	if err := s.require("disconnect", StateRunning, StateSuspended); err != nil {
		return err
	}

	s.transition(StateDisconnecting, Location{})
	err := s.commands.Disconnect(ctx)
	s.teardown("disconnect requested")

	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// Close disconnects if needed and makes the session permanently inert.
func (s *Session) Close() error {
	s.seq.Lock()
	defer s.seq.Unlock()

	s.mu.RLock()
	closed := s.closed
	state := s.state
	s.mu.RUnlock()
	if closed {
		return nil
	}

	var err error
	if state == StateRunning || state == StateSuspended {
		s.transition(StateDisconnecting, Location{})
		ctx, cancel := context.WithTimeout(context.Background(), s.commandTimeout)
		err = s.commands.Disconnect(ctx)
		cancel()
		s.teardown("session closed")
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// AddBreakpoint declares a breakpoint. It is submitted to the backend when
// attached; a *SyncError is returned, and kept on the breakpoint, when the
// submission fails. The returned breakpoint is registered either way.
func (s *Session) AddBreakpoint(ctx context.Context, loc location.Editor) (Breakpoint, error) {
	if !loc.Valid() {
		return Breakpoint{}, fmt.Errorf("add breakpoint %s: %w", loc, ErrInvalidLocation)
	}

	s.seq.Lock()
	defer s.seq.Unlock()

	if err := s.requireOpen("add breakpoint"); err != nil {
		return Breakpoint{}, err
	}
	bp, err := s.registry.add(ctx, s.attachedCommands(), loc)
	s.saveBreakpoints()
	return bp, err
}

// RemoveBreakpoint removes a breakpoint.
func (s *Session) RemoveBreakpoint(ctx context.Context, loc location.Editor) error {
	s.seq.Lock()
	defer s.seq.Unlock()

	if err := s.requireOpen("remove breakpoint"); err != nil {
		return err
	}
	if err := s.registry.remove(ctx, s.attachedCommands(), loc); err != nil {
		if errors.Is(err, ErrBreakpointNotFound) {
			return fmt.Errorf("remove breakpoint %s: %w", loc, err)
		}
		return err
	}
	s.saveBreakpoints()
	return nil
}

// SetBreakpointEnabled enables or disables a breakpoint without deleting it.
func (s *Session) SetBreakpointEnabled(ctx context.Context, loc location.Editor, enabled bool) (Breakpoint, error) {
	s.seq.Lock()
	defer s.seq.Unlock()

	if err := s.requireOpen("toggle breakpoint"); err != nil {
		return Breakpoint{}, err
	}
	bp, err := s.registry.setEnabled(ctx, s.attachedCommands(), loc, enabled)
	if errors.Is(err, ErrBreakpointNotFound) {
		return bp, fmt.Errorf("toggle breakpoint %s: %w", loc, err)
	}
	s.saveBreakpoints()
	return bp, err
}

// require checks the state for a command. Caller holds seq.
func (s *Session) require(op string, states ...State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &StateError{Op: op, State: s.state, Closed: true}
	}
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return &StateError{Op: op, State: s.state, Closed: s.torn}
}

func (s *Session) requireOpen(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &StateError{Op: op, State: s.state, Closed: true}
	}
	return nil
}

// attachedCommands returns the command transport when breakpoints should be
// sent to the backend, nil otherwise.
func (s *Session) attachedCommands() CommandTransport {
	switch s.State() {
	case StateRunning, StateSuspended:
		return s.commands
	}
	return nil
}

// transition moves the state machine and notifies observers. Caller holds seq.
func (s *Session) transition(to State, loc Location) {
	s.mu.Lock()
	from := s.state
	if !from.CanTransition(to) {
		s.mu.Unlock()
		s.log.Error().Stringer("from", from).Stringer("to", to).Msg("illegal transition ignored")
		return
	}
	s.state = to
	if to == StateSuspended {
		s.location = loc
	} else {
		s.location = Location{}
	}
	t := Transition{SessionID: s.id, From: from, To: to, Location: s.location}
	s.mu.Unlock()

	s.log.Debug().Stringer("from", from).Stringer("to", to).Msg("state changed")
	s.observers.stateChanged(t)
}

// teardown moves to disconnected, fails pending evaluations and forgets
// backend breakpoint state. Caller holds seq.
func (s *Session) teardown(reason string) {
	if s.State() != StateDisconnecting {
		s.transition(StateDisconnecting, Location{})
	}

	s.mu.Lock()
	s.torn = true
	s.epoch++
	s.mu.Unlock()

	for id, ev := range s.pending {
		ev.complete("", &EvaluationError{
			RequestID:  id,
			Expression: ev.expression,
			Err:        ErrSessionClosed,
		})
		delete(s.pending, id)
	}

	s.registry.detach()
	s.transition(StateDisconnected, Location{})
	s.saveBreakpoints()

	s.log.Info().Str("session_id", s.ID()).Str("reason", reason).Msg("session disconnected")
}

func (s *Session) disconnectQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), s.commandTimeout)
	defer cancel()
	if err := s.commands.Disconnect(ctx); err != nil {
		s.log.Debug().Err(err).Msg("disconnect after failed attach")
	}
}

func (s *Session) saveBreakpoints() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.backend.Kind(), s.registry.saved()); err != nil {
		s.log.Warn().Err(err).Msg("failed to save breakpoints")
	}
}
