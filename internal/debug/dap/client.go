package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned for requests on a client whose connection ended.
var ErrClosed = errors.New("dap: connection closed")

// ResponseError is a response with success=false.
type ResponseError struct {
	Command string
	Message string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed", e.Command)
	}
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

// Client is a DAP client that communicates with a debug adapter.
//
// Events are delivered to the handler in arrival order from the receive
// goroutine. A handler that issues requests must hand the event off first,
// since responses are read by the same goroutine.
type Client struct {
	transport Transport
	log       zerolog.Logger
	seq       int64

	pendingMu sync.Mutex
	pending   map[int]*pendingRequest
	closed    bool

	handlerMu sync.RWMutex
	onEvent   func(Event)

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.RWMutex
	err       error
}

// pendingRequest tracks a pending request awaiting response.
type pendingRequest struct {
	done      chan struct{}
	closeOnce sync.Once
	response  *Response
	err       error
}

func (p *pendingRequest) finish(resp *Response, err error) {
	p.closeOnce.Do(func() {
		p.response = resp
		p.err = err
		close(p.done)
	})
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = logger
	}
}

// NewClient creates a client and starts reading from transport.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		log:       log.With().Str("component", "dap").Logger(),
		pending:   make(map[int]*pendingRequest),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.receiveLoop()
	return c
}

// OnEvent sets the event handler.
func (c *Client) OnEvent(handler func(Event)) {
	c.handlerMu.Lock()
	c.onEvent = handler
	c.handlerMu.Unlock()
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the receive loop, if any.
func (c *Client) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

// Close closes the client and underlying transport.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return c.transport.Close()
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()

		c.pendingMu.Lock()
		pending := c.pending
		c.pending = make(map[int]*pendingRequest)
		c.closed = true
		c.pendingMu.Unlock()

		for _, req := range pending {
			req.finish(nil, fmt.Errorf("%w: %v", ErrClosed, err))
		}
		close(c.done)
	})
}

func (c *Client) receiveLoop() {
	for {
		msg, err := c.transport.Receive()
		if err != nil {
			c.shutdown(err)
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg *Message) {
	var base ProtocolMessage
	if err := json.Unmarshal(msg.Content, &base); err != nil {
		c.log.Warn().Err(err).Msg("malformed message")
		return
	}

	switch base.Type {
	case "response":
		var resp Response
		if err := json.Unmarshal(msg.Content, &resp); err != nil {
			c.log.Warn().Err(err).Msg("malformed response")
			return
		}
		c.pendingMu.Lock()
		req, ok := c.pending[resp.RequestSeq]
		delete(c.pending, resp.RequestSeq)
		c.pendingMu.Unlock()
		if ok {
			req.finish(&resp, nil)
		}

	case "event":
		var evt Event
		if err := json.Unmarshal(msg.Content, &evt); err != nil {
			c.log.Warn().Err(err).Msg("malformed event")
			return
		}
		c.handlerMu.RLock()
		handler := c.onEvent
		c.handlerMu.RUnlock()
		if handler != nil {
			handler(evt)
		}

	default:
		c.log.Debug().Str("type", base.Type).Msg("ignoring message")
	}
}

// call sends a request, waits for its response and decodes the body into
// result when result is non-nil.
func (c *Client) call(ctx context.Context, command string, args, result any) error {
	seq := int(atomic.AddInt64(&c.seq, 1))

	req := Request{
		ProtocolMessage: ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
	}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshal %s arguments: %w", command, err)
		}
		req.Arguments = raw
	}

	content, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", command, err)
	}

	pending := &pendingRequest{done: make(chan struct{})}
	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return ErrClosed
	}
	c.pending[seq] = pending
	c.pendingMu.Unlock()

	if err := c.transport.Send(&Message{Content: content}); err != nil {
		c.forget(seq)
		return fmt.Errorf("send %s: %w", command, err)
	}

	select {
	case <-ctx.Done():
		c.forget(seq)
		return ctx.Err()
	case <-pending.done:
	}

	if pending.err != nil {
		return pending.err
	}
	resp := pending.response
	if !resp.Success {
		return &ResponseError{Command: command, Message: resp.Message}
	}
	if result != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return fmt.Errorf("unmarshal %s response: %w", command, err)
		}
	}
	return nil
}

func (c *Client) forget(seq int) {
	c.pendingMu.Lock()
	delete(c.pending, seq)
	c.pendingMu.Unlock()
}

// Initialize sends the initialize request.
func (c *Client) Initialize(ctx context.Context, args InitializeRequestArguments) (*Capabilities, error) {
	var caps Capabilities
	if err := c.call(ctx, "initialize", args, &caps); err != nil {
		return nil, err
	}
	return &caps, nil
}

// Attach sends the attach request with adapter-specific arguments.
func (c *Client) Attach(ctx context.Context, args map[string]any) error {
	return c.call(ctx, "attach", args, nil)
}

// ConfigurationDone sends the configurationDone request.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	return c.call(ctx, "configurationDone", nil, nil)
}

// Disconnect sends the disconnect request.
func (c *Client) Disconnect(ctx context.Context, args DisconnectArguments) error {
	return c.call(ctx, "disconnect", args, nil)
}

// SetBreakpoints replaces the breakpoints of one source.
func (c *Client) SetBreakpoints(ctx context.Context, args SetBreakpointsArguments) ([]Breakpoint, error) {
	var body SetBreakpointsResponseBody
	if err := c.call(ctx, "setBreakpoints", args, &body); err != nil {
		return nil, err
	}
	return body.Breakpoints, nil
}

// Continue resumes a thread.
func (c *Client) Continue(ctx context.Context, threadID int) error {
	return c.call(ctx, "continue", ThreadArguments{ThreadID: threadID}, nil)
}

// Next steps over.
func (c *Client) Next(ctx context.Context, threadID int) error {
	return c.call(ctx, "next", ThreadArguments{ThreadID: threadID}, nil)
}

// StepIn steps into.
func (c *Client) StepIn(ctx context.Context, threadID int) error {
	return c.call(ctx, "stepIn", ThreadArguments{ThreadID: threadID}, nil)
}

// StepOut steps out.
func (c *Client) StepOut(ctx context.Context, threadID int) error {
	return c.call(ctx, "stepOut", ThreadArguments{ThreadID: threadID}, nil)
}

// Threads lists the debuggee threads.
func (c *Client) Threads(ctx context.Context) ([]Thread, error) {
	var body ThreadsResponseBody
	if err := c.call(ctx, "threads", nil, &body); err != nil {
		return nil, err
	}
	return body.Threads, nil
}

// StackTrace returns the frames of a thread.
func (c *Client) StackTrace(ctx context.Context, args StackTraceArguments) (*StackTraceResponseBody, error) {
	var body StackTraceResponseBody
	if err := c.call(ctx, "stackTrace", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Evaluate evaluates an expression.
func (c *Client) Evaluate(ctx context.Context, args EvaluateArguments) (*EvaluateResponseBody, error) {
	var body EvaluateResponseBody
	if err := c.call(ctx, "evaluate", args, &body); err != nil {
		return nil, err
	}
	return &body, nil
}
