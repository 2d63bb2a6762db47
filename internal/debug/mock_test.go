package debug

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/stormdbg/internal/debug/descriptor"
	"github.com/dshills/stormdbg/internal/debug/location"
)

// fakeBackend is a jdb-like backend over a fixed set of project files.
type fakeBackend struct {
	resolver location.Resolver
}

func newFakeBackend() *fakeBackend {
	files := location.FileCheckerFunc(func(path string) bool {
		switch path {
		case "/p/src/com/example/Foo.java", "/p/src/com/example/Bar.java":
			return true
		}
		return false
	})
	return &fakeBackend{resolver: location.NewJavaResolver([]string{"/p/src"}, files)}
}

func (b *fakeBackend) Kind() string                { return "jdb" }
func (b *fakeBackend) Resolver() location.Resolver { return b.resolver }
func (b *fakeBackend) Descriptor(p map[string]string) descriptor.Descriptor {
	return descriptor.HostPort("", p)
}

func (b *fakeBackend) ParseConfig(params map[string]string) (Config, error) {
	host, _ := descriptor.Lookup(params, descriptor.KeyHost)
	port, _ := descriptor.Lookup(params, descriptor.KeyPort)
	if host == "" || port == "" {
		return nil, ErrInvalidConfig
	}
	return mapConfig{descriptor.KeyHost: host, descriptor.KeyPort: port}, nil
}

type mapConfig map[string]string

func (c mapConfig) Params() map[string]string { return c }

// mockTransport records commands and feeds events to the session.
type mockTransport struct {
	mu    sync.Mutex
	calls []string
	feed  chan RawEvent
	evals int

	attachErr  error
	commandErr error
	addErr     error
	noFeed     bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{}
}

func (m *mockTransport) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockTransport) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockTransport) count(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (m *mockTransport) Attach(ctx context.Context, params map[string]string) error {
	m.record("attach")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		return m.attachErr
	}
	if !m.noFeed {
		m.feed = make(chan RawEvent, 32)
	}
	return nil
}

func (m *mockTransport) command(name string) error {
	m.record(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commandErr
}

func (m *mockTransport) Resume(ctx context.Context) error   { return m.command("resume") }
func (m *mockTransport) StepInto(ctx context.Context) error { return m.command("stepInto") }
func (m *mockTransport) StepOver(ctx context.Context) error { return m.command("stepOver") }
func (m *mockTransport) StepOut(ctx context.Context) error  { return m.command("stepOut") }

func (m *mockTransport) Evaluate(ctx context.Context, expression string) (string, error) {
	m.record("evaluate " + expression)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commandErr != nil {
		return "", m.commandErr
	}
	m.evals++
	return strconv.Itoa(m.evals), nil
}

func (m *mockTransport) AddBreakpoint(ctx context.Context, loc location.Backend) error {
	m.record("add " + loc.String())
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addErr
}

func (m *mockTransport) RemoveBreakpoint(ctx context.Context, loc location.Backend) error {
	m.record("remove " + loc.String())
	return nil
}

func (m *mockTransport) Disconnect(ctx context.Context) error {
	m.record("disconnect")
	m.closeFeed()
	return nil
}

func (m *mockTransport) Events() <-chan RawEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.feed == nil {
		return nil
	}
	return m.feed
}

func (m *mockTransport) emit(t *testing.T, ev Event) {
	t.Helper()
	raw, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent(%T) failed: %v", ev, err)
	}
	if !m.deliver(raw) {
		t.Fatal("emit without an open feed")
	}
}

// deliver sends raw on the open feed. The lock is released before sending
// so commands issued while events are handled do not wait on the feed.
func (m *mockTransport) deliver(raw RawEvent) bool {
	m.mu.Lock()
	feed := m.feed
	m.mu.Unlock()
	if feed == nil {
		return false
	}
	feed <- raw
	return true
}

func (m *mockTransport) closeFeed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.feed != nil {
		close(m.feed)
		m.feed = nil
	}
}

// recorder collects session notifications.
type recorder struct {
	mu          sync.Mutex
	transitions []Transition
	events      []Event
}

func (r *recorder) OnStateChanged(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions...)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// eventCount returns the number of recorded events of type et.
func (r *recorder) eventCount(et EventType) int {
	n := 0
	for _, e := range r.Events() {
		if e.Type() == et {
			n++
		}
	}
	return n
}

// states returns the target state of each recorded transition.
func (r *recorder) states() []State {
	var result []State
	for _, t := range r.Transitions() {
		result = append(result, t.To)
	}
	return result
}

var jdbParams = map[string]string{"HOST": "localhost", "PORT": "5005"}

func newTestSession(t *testing.T, opts ...Option) (*Session, *mockTransport, *recorder) {
	t.Helper()
	mt := newMockTransport()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	s := NewSession(newFakeBackend(), mt, mt, opts...)
	rec := &recorder{}
	s.AddObserver(rec)
	t.Cleanup(func() { s.Close() })
	return s, mt, rec
}

func attach(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Attach(context.Background(), jdbParams); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	eventually(t, "state "+want.String(), func() bool { return s.State() == want })
}

// suspendAt attaches and stops the session at com.example.Foo:line.
func suspendAt(t *testing.T, s *Session, mt *mockTransport, line int) {
	t.Helper()
	if s.State() == StateDisconnected {
		attach(t, s)
	}
	mt.emit(t, BreakpointActivated{Location: Location{Backend: location.Backend{Target: "com.example.Foo", Line: line}}})
	eventually(t, "suspension", func() bool {
		loc, ok := s.Location()
		return ok && loc.Backend.Line == line
	})
}

var errBoom = errors.New("boom")
