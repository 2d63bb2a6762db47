// Package remote drives a debug session through a debugger service that
// exposes commands over HTTP and pushes events over a websocket.
//
// The service owns the actual debugger connection. Attach creates a service
// session for a backend kind; every later command addresses that session:
//
//	POST   {base}/debugger/{kind}                 connect, returns {"id": ...}
//	GET    {base}/debugger/{id}/events            websocket of event envelopes
//	POST   {base}/debugger/{id}/resume
//	POST   {base}/debugger/{id}/step/into
//	POST   {base}/debugger/{id}/step/over
//	POST   {base}/debugger/{id}/step/out
//	POST   {base}/debugger/{id}/evaluation        returns {"requestId": ...}
//	POST   {base}/debugger/{id}/breakpoint
//	DELETE {base}/debugger/{id}/breakpoint?target=...&line=...
//	DELETE {base}/debugger/{id}                   disconnect
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dshills/stormdbg/internal/debug"
	"github.com/dshills/stormdbg/internal/debug/location"
)

// ErrNotAttached is returned for commands before Attach or after Disconnect.
var ErrNotAttached = errors.New("remote: not attached")

// DefaultHandshakeTimeout bounds the websocket handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("remote: %s %s: %d: %s", e.Method, e.Path, e.Code, e.Message)
}

// Client implements debug.Transport against a debugger service.
type Client struct {
	base   *url.URL
	kind   string
	http   *http.Client
	dialer *websocket.Dialer
	header http.Header
	log    zerolog.Logger

	mu        sync.Mutex
	sessionID string
	ws        *websocket.Conn
	feed      chan debug.RawEvent
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHeader adds a header to every request and to the websocket handshake.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// WithHandshakeTimeout sets the websocket handshake timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialer.HandshakeTimeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// New creates a client for the service at baseURL that attaches sessions of
// the given backend kind.
func New(baseURL, kind string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: base url %q: scheme must be http or https", baseURL)
	}
	if kind == "" {
		return nil, errors.New("remote: backend kind is required")
	}

	c := &Client{
		base:   base,
		kind:   kind,
		http:   http.DefaultClient,
		dialer: &websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout},
		header: make(http.Header),
		log:    log.With().Str("component", "remote").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SessionID returns the service session id, or "" when not attached.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Attach connects a service session and opens its event socket.
// Commands fail with ErrNotAttached once the socket ends.
func (c *Client) Attach(ctx context.Context, params map[string]string) error {
	// A session the service ended without closing its socket is dropped.
	c.mu.Lock()
	stale, staleWS := c.sessionID, c.ws
	c.sessionID, c.ws, c.feed = "", nil, nil
	c.mu.Unlock()
	if stale != "" {
		c.log.Debug().Str("session", stale).Msg("drop stale session")
		closeSocket(staleWS)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("debugger", c.kind), nil, map[string]any{"params": params}, &resp); err != nil {
		return err
	}
	if resp.ID == "" {
		return errors.New("remote: connect response has no session id")
	}

	ws, _, err := c.dialer.DialContext(ctx, c.socketURL(resp.ID), c.header)
	if err != nil {
		// The service session exists but is unusable without its events.
		if derr := c.do(ctx, http.MethodDelete, c.endpoint("debugger", resp.ID), nil, nil, nil); derr != nil {
			c.log.Debug().Err(derr).Str("session", resp.ID).Msg("drop session after failed event dial")
		}
		return fmt.Errorf("remote: event socket: %w", err)
	}

	feed := make(chan debug.RawEvent)
	c.mu.Lock()
	c.sessionID = resp.ID
	c.ws = ws
	c.feed = feed
	c.mu.Unlock()

	c.log.Debug().Str("session", resp.ID).Msg("attached")
	go c.readLoop(ws, feed)
	return nil
}

// Events returns the feed of the current service session.
func (c *Client) Events() <-chan debug.RawEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feed
}

// Resume resumes the debuggee.
func (c *Client) Resume(ctx context.Context) error {
	return c.command(ctx, "resume")
}

// StepInto steps into the next call.
func (c *Client) StepInto(ctx context.Context) error {
	return c.command(ctx, "step", "into")
}

// StepOver steps over the next call.
func (c *Client) StepOver(ctx context.Context) error {
	return c.command(ctx, "step", "over")
}

// StepOut steps out of the current frame.
func (c *Client) StepOut(ctx context.Context) error {
	return c.command(ctx, "step", "out")
}

// Evaluate submits an expression. The result arrives on the event socket.
func (c *Client) Evaluate(ctx context.Context, expression string) (string, error) {
	id, err := c.session()
	if err != nil {
		return "", err
	}
	var resp struct {
		RequestID json.RawMessage `json:"requestId"`
	}
	body := map[string]string{"expression": expression}
	if err := c.do(ctx, http.MethodPost, c.endpoint("debugger", id, "evaluation"), nil, body, &resp); err != nil {
		return "", err
	}
	requestID := strings.Trim(string(resp.RequestID), `"`)
	if requestID == "" || requestID == "null" {
		return "", errors.New("remote: evaluation response has no request id")
	}
	return requestID, nil
}

// AddBreakpoint installs a breakpoint. Confirmation arrives on the socket.
func (c *Client) AddBreakpoint(ctx context.Context, loc location.Backend) error {
	id, err := c.session()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, c.endpoint("debugger", id, "breakpoint"), nil, loc, nil)
}

// RemoveBreakpoint removes a breakpoint.
func (c *Client) RemoveBreakpoint(ctx context.Context, loc location.Backend) error {
	id, err := c.session()
	if err != nil {
		return err
	}
	query := url.Values{"target": {loc.Target}}
	if loc.Line > 0 {
		query.Set("line", strconv.Itoa(loc.Line))
	}
	return c.do(ctx, http.MethodDelete, c.endpoint("debugger", id, "breakpoint"), query, nil, nil)
}

// Disconnect ends the service session and closes the event socket. The
// local state is cleared even when the service call fails.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	id, ws := c.sessionID, c.ws
	c.sessionID, c.ws, c.feed = "", nil, nil
	c.mu.Unlock()
	if id == "" {
		return ErrNotAttached
	}

	err := c.do(ctx, http.MethodDelete, c.endpoint("debugger", id), nil, nil, nil)
	closeSocket(ws)
	c.log.Debug().Str("session", id).Msg("disconnected")
	return err
}

func (c *Client) command(ctx context.Context, path ...string) error {
	id, err := c.session()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, c.endpoint(append([]string{"debugger", id}, path...)...), nil, nil, nil)
}

func (c *Client) session() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		return "", ErrNotAttached
	}
	return c.sessionID, nil
}

// readLoop forwards socket messages until the socket ends. Messages that
// are not event envelopes are skipped.
func (c *Client) readLoop(ws *websocket.Conn, feed chan<- debug.RawEvent) {
	defer close(feed)
	defer func() {
		ws.Close()
		c.mu.Lock()
		if c.ws == ws {
			c.sessionID, c.ws, c.feed = "", nil, nil
		}
		c.mu.Unlock()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("event socket closed")
			}
			return
		}

		var raw debug.RawEvent
		if err := json.Unmarshal(data, &raw); err != nil || raw.Type == "" {
			c.log.Warn().Err(err).Int("bytes", len(data)).Msg("skip malformed event message")
			continue
		}
		feed <- raw
	}
}

func closeSocket(ws *websocket.Conn) {
	if ws == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = ws.Close()
}

// do sends a JSON request and decodes a JSON answer into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path = path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(data))

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		switch {
		case body.Message != "":
			msg = body.Message
		case body.Error != "":
			msg = body.Error
		}
	}
	return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: msg}
}

func (c *Client) endpoint(segments ...string) string {
	return c.base.Path + "/" + strings.Join(segments, "/")
}

func (c *Client) socketURL(id string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.endpoint("debugger", id, "events")
	u.RawQuery = ""
	return u.String()
}
