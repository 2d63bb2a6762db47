// Package dapbridge drives a debug session through a Debug Adapter Protocol
// adapter such as dlv dap, debugpy or js-debug.
//
// DAP events are queued from the client's receive goroutine and translated
// on a worker, in arrival order. Translating a stopped event issues
// requests (threads, stackTrace), which is why the hand-off is needed.
package dapbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dshills/stormdbg/internal/debug"
	"github.com/dshills/stormdbg/internal/debug/dap"
	"github.com/dshills/stormdbg/internal/debug/location"
)

// ErrNotAttached is returned for commands before Attach or after Disconnect.
var ErrNotAttached = errors.New("dapbridge: not attached")

// DefaultEvaluateTimeout bounds a single evaluate request.
const DefaultEvaluateTimeout = 30 * time.Second

// DialFunc opens a new connection to the adapter.
type DialFunc func(ctx context.Context) (dap.Transport, error)

// AttachArgsFunc converts connection parameters to DAP attach arguments.
type AttachArgsFunc func(params map[string]string) map[string]any

// Bridge implements debug.Transport on top of a DAP client. Each Attach
// opens a new adapter connection.
type Bridge struct {
	dial            DialFunc
	attachArgs      AttachArgsFunc
	adapterID       string
	evaluateTimeout time.Duration
	log             zerolog.Logger

	mu   sync.Mutex
	conn *conn
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.log = logger
	}
}

// WithAttachArgs replaces DefaultAttachArgs.
func WithAttachArgs(f AttachArgsFunc) Option {
	return func(b *Bridge) {
		b.attachArgs = f
	}
}

// WithAdapterID sets the adapterID sent in the initialize request.
func WithAdapterID(id string) Option {
	return func(b *Bridge) {
		b.adapterID = id
	}
}

// WithEvaluateTimeout sets the timeout of evaluate requests.
func WithEvaluateTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.evaluateTimeout = d
		}
	}
}

// New creates a bridge that connects through dial.
func New(dial DialFunc, opts ...Option) *Bridge {
	b := &Bridge{
		dial:            dial,
		attachArgs:      DefaultAttachArgs,
		adapterID:       "stormdbg",
		evaluateTimeout: DefaultEvaluateTimeout,
		log:             log.With().Str("component", "dapbridge").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DefaultAttachArgs passes parameters through with lower-case keys. Numeric
// port and pid values become numbers; pid is sent as processId.
func DefaultAttachArgs(params map[string]string) map[string]any {
	args := map[string]any{"request": "attach"}
	for k, v := range params {
		key := strings.ToLower(k)
		switch key {
		case "port":
			if n, err := strconv.Atoi(v); err == nil {
				args["port"] = n
				continue
			}
		case "pid":
			if n, err := strconv.Atoi(v); err == nil {
				args["processId"] = n
				continue
			}
		}
		args[key] = v
	}
	return args
}

// item is a unit of work for the translation worker: a DAP event to
// translate or an already translated event to forward.
type item struct {
	dap   *dap.Event
	ready debug.Event
}

// conn is the state of one adapter connection.
type conn struct {
	client *dap.Client
	work   *queue[item]
	feed   chan debug.RawEvent

	mu          sync.Mutex
	threadID    int
	frameID     int
	breakpoints map[string][]int
	evalSeq     int

	// requested maps adapter breakpoint ids to the position that was asked
	// for. Adapters may install a breakpoint on a later line.
	requested map[int]location.Backend
}

// Attach connects, initializes the adapter and attaches to the debuggee.
func (b *Bridge) Attach(ctx context.Context, params map[string]string) error {
	transport, err := b.dial(ctx)
	if err != nil {
		return err
	}

	c := &conn{
		client:      dap.NewClient(transport, dap.WithClientLogger(b.log)),
		work:        newQueue[item](),
		feed:        make(chan debug.RawEvent),
		breakpoints: make(map[string][]int),
		requested:   make(map[int]location.Backend),
	}
	c.client.OnEvent(func(e dap.Event) {
		c.work.push(item{dap: &e})
	})

	caps, err := c.client.Initialize(ctx, dap.InitializeRequestArguments{
		ClientID:        "stormdbg",
		ClientName:      "stormdbg",
		AdapterID:       b.adapterID,
		LinesStartAt1:   true,
		ColumnsStartAt1: true,
		PathFormat:      "path",
	})
	if err != nil {
		c.client.Close()
		return fmt.Errorf("initialize: %w", err)
	}
	if err := c.client.Attach(ctx, b.attachArgs(params)); err != nil {
		c.client.Close()
		return fmt.Errorf("attach: %w", err)
	}
	if caps.SupportsConfigurationDoneRequest {
		if err := c.client.ConfigurationDone(ctx); err != nil {
			c.client.Close()
			return fmt.Errorf("configuration done: %w", err)
		}
	}

	b.mu.Lock()
	b.conn = c
	b.mu.Unlock()

	go func() {
		<-c.client.Done()
		c.work.close()
	}()
	go b.translate(c)
	return nil
}

// Events returns the feed of the current connection.
func (b *Bridge) Events() <-chan debug.RawEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	return b.conn.feed
}

func (b *Bridge) current() (*conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil, ErrNotAttached
	}
	return b.conn, nil
}

func (b *Bridge) thread(ctx context.Context, call func(*dap.Client, context.Context, int) error) error {
	c, err := b.current()
	if err != nil {
		return err
	}
	c.mu.Lock()
	threadID := c.threadID
	c.mu.Unlock()
	return call(c.client, ctx, threadID)
}

// Resume continues the stopped thread.
func (b *Bridge) Resume(ctx context.Context) error {
	return b.thread(ctx, (*dap.Client).Continue)
}

// StepInto steps into on the stopped thread.
func (b *Bridge) StepInto(ctx context.Context) error {
	return b.thread(ctx, (*dap.Client).StepIn)
}

// StepOver steps over on the stopped thread.
func (b *Bridge) StepOver(ctx context.Context) error {
	return b.thread(ctx, (*dap.Client).Next)
}

// StepOut steps out on the stopped thread.
func (b *Bridge) StepOut(ctx context.Context) error {
	return b.thread(ctx, (*dap.Client).StepOut)
}

// Evaluate starts an evaluate request in the top frame. The result arrives
// as an evaluation-result event carrying the returned id.
func (b *Bridge) Evaluate(ctx context.Context, expression string) (string, error) {
	c, err := b.current()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.evalSeq++
	id := strconv.Itoa(c.evalSeq)
	frameID := c.frameID
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.evaluateTimeout)
		defer cancel()

		result := debug.EvaluationResult{RequestID: id}
		body, err := c.client.Evaluate(ctx, dap.EvaluateArguments{
			Expression: expression,
			FrameID:    frameID,
			Context:    "repl",
		})
		if err != nil {
			result.Error = failureMessage(err)
		} else {
			result.Value = body.Result
		}
		c.work.push(item{ready: result})
	}()
	return id, nil
}

// AddBreakpoint adds a line to the source's breakpoint set.
func (b *Bridge) AddBreakpoint(ctx context.Context, loc location.Backend) error {
	c, err := b.current()
	if err != nil {
		return err
	}

	c.mu.Lock()
	lines := c.breakpoints[loc.Target]
	if slices.Contains(lines, loc.Line) {
		c.mu.Unlock()
		return nil
	}
	next := append(slices.Clone(lines), loc.Line)
	c.mu.Unlock()

	bps, err := b.setBreakpoints(ctx, c, loc.Target, next)
	if err != nil {
		return err
	}

	// Confirmations carry the requested position so they match the
	// registry entry even when the adapter moved the line.
	for i, bp := range bps {
		if i >= len(next) || next[i] != loc.Line {
			continue
		}
		switch {
		case bp.Verified:
			if bp.Line > 0 && bp.Line != loc.Line {
				b.log.Debug().
					Str("target", loc.String()).
					Int("installed_line", bp.Line).
					Msg("adapter moved breakpoint")
			}
			c.work.push(item{ready: debug.BreakpointConfirmed{
				BackendID: strconv.Itoa(bp.ID),
				Location:  debug.Location{Backend: loc},
			}})
		case bp.Message != "":
			c.work.push(item{ready: debug.BreakpointRejected{
				Location: debug.Location{Backend: loc},
				Reason:   bp.Message,
			}})
		}
	}
	return nil
}

// RemoveBreakpoint removes a line from the source's breakpoint set.
func (b *Bridge) RemoveBreakpoint(ctx context.Context, loc location.Backend) error {
	c, err := b.current()
	if err != nil {
		return err
	}

	c.mu.Lock()
	lines := c.breakpoints[loc.Target]
	i := slices.Index(lines, loc.Line)
	if i < 0 {
		c.mu.Unlock()
		return nil
	}
	next := slices.Delete(slices.Clone(lines), i, i+1)
	c.mu.Unlock()

	_, err = b.setBreakpoints(ctx, c, loc.Target, next)
	return err
}

// setBreakpoints sends the full line set of a source and records it on
// success. The adapter answers in request order, which ties each returned
// id to a requested line.
func (b *Bridge) setBreakpoints(ctx context.Context, c *conn, path string, lines []int) ([]dap.Breakpoint, error) {
	args := dap.SetBreakpointsArguments{
		Source:      dap.Source{Name: filepath.Base(path), Path: path},
		Breakpoints: make([]dap.SourceBreakpoint, 0, len(lines)),
	}
	for _, line := range lines {
		args.Breakpoints = append(args.Breakpoints, dap.SourceBreakpoint{Line: line})
	}

	bps, err := c.client.SetBreakpoints(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("set breakpoints %s: %w", path, err)
	}

	c.mu.Lock()
	if len(lines) == 0 {
		delete(c.breakpoints, path)
	} else {
		c.breakpoints[path] = lines
	}
	for id, loc := range c.requested {
		if loc.Target == path {
			delete(c.requested, id)
		}
	}
	for i, bp := range bps {
		if i < len(lines) && bp.ID != 0 {
			c.requested[bp.ID] = location.Backend{Target: path, Line: lines[i]}
		}
	}
	c.mu.Unlock()
	return bps, nil
}

// Disconnect detaches from the debuggee and closes the connection.
func (b *Bridge) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	c := b.conn
	b.conn = nil
	b.mu.Unlock()

	if c == nil {
		return nil
	}
	err := c.client.Disconnect(ctx, dap.DisconnectArguments{TerminateDebuggee: false})
	c.client.Close()
	if errors.Is(err, dap.ErrClosed) {
		return nil
	}
	return err
}

// translate turns queued DAP events into session events. It closes the
// feed once the connection ended and the queue drained.
func (b *Bridge) translate(c *conn) {
	defer close(c.feed)

	for {
		it, ok := c.work.pop()
		if !ok {
			return
		}

		ev := it.ready
		if it.dap != nil {
			ev = b.convert(c, *it.dap)
		}
		if ev == nil {
			continue
		}

		raw, err := debug.EncodeEvent(ev)
		if err != nil {
			b.log.Warn().Err(err).Msg("cannot encode event")
			continue
		}
		c.feed <- raw
	}
}

// convert maps one DAP event. Events with no session meaning return nil.
func (b *Bridge) convert(c *conn, e dap.Event) debug.Event {
	switch e.Event {
	case "stopped":
		var body dap.StoppedEventBody
		if err := unmarshal(e, &body); err != nil {
			b.log.Warn().Err(err).Msg("malformed stopped event")
			return nil
		}
		loc, err := b.topFrame(c, body.ThreadID)
		if err != nil {
			b.log.Warn().Err(err).Int("thread", body.ThreadID).Msg("cannot locate stopped thread")
			return nil
		}
		switch body.Reason {
		case "breakpoint", "function breakpoint", "data breakpoint", "instruction breakpoint":
			return debug.BreakpointActivated{Location: debug.Location{Backend: loc}}
		case "step":
			return debug.StepCompleted{Location: debug.Location{Backend: loc}}
		}
		// Pause, exception and entry stops suspend the debuggee without a
		// breakpoint. The session has no other suspension event for them.
		b.log.Debug().Str("reason", body.Reason).Msg("reporting stop as suspension")
		return debug.StepCompleted{Location: debug.Location{Backend: loc}}

	case "breakpoint":
		var body dap.BreakpointEventBody
		if err := unmarshal(e, &body); err != nil {
			b.log.Warn().Err(err).Msg("malformed breakpoint event")
			return nil
		}
		if body.Reason != "changed" && body.Reason != "new" {
			return nil
		}
		c.mu.Lock()
		loc, known := c.requested[body.Breakpoint.ID]
		c.mu.Unlock()
		if !known {
			if body.Breakpoint.Source == nil {
				return nil
			}
			loc = location.Backend{Target: body.Breakpoint.Source.Path, Line: body.Breakpoint.Line}
		}
		if body.Breakpoint.Verified {
			return debug.BreakpointConfirmed{
				BackendID: strconv.Itoa(body.Breakpoint.ID),
				Location:  debug.Location{Backend: loc},
			}
		}
		if body.Breakpoint.Message != "" {
			return debug.BreakpointRejected{Location: debug.Location{Backend: loc}, Reason: body.Breakpoint.Message}
		}
		return nil

	case "exited":
		var body dap.ExitedEventBody
		if err := unmarshal(e, &body); err != nil {
			b.log.Warn().Err(err).Msg("malformed exited event")
			return debug.ProcessExited{ExitCode: -1}
		}
		return debug.ProcessExited{ExitCode: body.ExitCode}

	case "terminated":
		return debug.Disconnected{Reason: "debuggee terminated"}
	}

	b.log.Debug().Str("event", e.Event).Msg("ignoring adapter event")
	return nil
}

// topFrame looks up the innermost frame of a stopped thread and remembers
// it for stepping and evaluation.
func (b *Bridge) topFrame(c *conn, threadID int) (location.Backend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.evaluateTimeout)
	defer cancel()

	if threadID == 0 {
		threads, err := c.client.Threads(ctx)
		if err != nil {
			return location.Backend{}, err
		}
		if len(threads) == 0 {
			return location.Backend{}, errors.New("no threads")
		}
		threadID = threads[0].ID
	}

	trace, err := c.client.StackTrace(ctx, dap.StackTraceArguments{ThreadID: threadID, Levels: 1})
	if err != nil {
		return location.Backend{}, err
	}
	if len(trace.StackFrames) == 0 {
		return location.Backend{}, errors.New("empty stack")
	}
	frame := trace.StackFrames[0]

	c.mu.Lock()
	c.threadID = threadID
	c.frameID = frame.ID
	c.mu.Unlock()

	target := frame.Name
	if frame.Source != nil {
		if frame.Source.Path != "" {
			target = frame.Source.Path
		} else if frame.Source.Name != "" {
			target = frame.Source.Name
		}
	}
	return location.Backend{Target: target, Line: frame.Line}, nil
}

func failureMessage(err error) string {
	var respErr *dap.ResponseError
	if errors.As(err, &respErr) && respErr.Message != "" {
		return respErr.Message
	}
	return err.Error()
}

func unmarshal(e dap.Event, v any) error {
	if len(e.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("decode %s event: %w", e.Event, err)
	}
	return nil
}
