// Package client implements the emulator MCP transport client: one persistent
// connection, token authentication, bounded reconnects and correlated calls.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/FreePeak/emulator-mcp-server/internal/domain/shared"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/transport"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
)

// State is the connection state of a Client.
type State int

// Connection states
const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Client errors
var (
	ErrNotReady       = mcperrors.NewConnectionError("client is not connected")
	ErrClientClosed   = mcperrors.NewConnectionError("client closed")
	ErrGaveUp         = mcperrors.NewConnectionError("gave up reconnecting")
	ErrConnectionLost = mcperrors.NewConnectionError("connection lost")
)

// DefaultEventBuffer is the capacity of the Events channel.
const DefaultEventBuffer = 64

// Config configures a Client.
type Config struct {
	URL    string
	Dialer transport.Dialer
	Tokens TokenSource
	// Backoff defaults to DefaultBackoff.
	Backoff Backoff
	// CallTimeout is the default per-call deadline and the authentication deadline.
	CallTimeout time.Duration
	Scheduler   Scheduler
	Logger      *logging.Logger
	EventBuffer int
}

// Client is safe for concurrent use.
type Client struct {
	cfg        Config
	sched      Scheduler
	correlator *Correlator
	logger     *logging.Logger
	events     chan Event

	// authMu serialises authenticate exchanges so each waits for its own reply.
	authMu sync.Mutex

	mu        sync.Mutex
	state     State
	conn      transport.Conn
	sessionID string
	attempt   int
	gaveUp    bool
	closed    bool
	authWait  chan authResult
	reconnect Timer
	changed   chan struct{}
}

type authResult struct {
	sessionID string
	err       error
}

// New creates a disconnected client.
func New(cfg Config) *Client {
	if cfg.Backoff.MaxAttempts <= 0 || cfg.Backoff.BaseDelay <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = SystemScheduler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}

	return &Client{
		cfg:        cfg,
		sched:      cfg.Scheduler,
		correlator: NewCorrelator(cfg.Scheduler, cfg.CallTimeout),
		logger:     cfg.Logger.Named("client"),
		events:     make(chan Event, cfg.EventBuffer),
		changed:    make(chan struct{}),
	}
}

// Events delivers state changes, reconnect scheduling, give-up and tool
// results. Events are dropped when the buffer is full. The channel is never closed.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the identifier the server assigned on authentication.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connect opens the connection and authenticates it. It resets the reconnect
// policy, so it also resumes a client that gave up. When the attempt fails the
// error is returned and automatic reconnects are scheduled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.attempt = 0
	c.gaveUp = false
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.logger.Warn("connect failed", logging.Fields{"error": err})
		c.scheduleReconnect()
		return err
	}
	return nil
}

// WaitReady blocks until the client is ready, gives up, or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, gaveUp, closed, changed := c.state, c.gaveUp, c.closed, c.changed
		c.mu.Unlock()

		switch {
		case closed:
			return ErrClientClosed
		case state == StateReady:
			return nil
		case gaveUp:
			return ErrGaveUp
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close shuts the client down. Pending calls fail and no reconnect follows.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.mu.Unlock()

	c.correlator.FailAll(ErrClientClosed)
	c.setState(StateDisconnected)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// CallOption configures a single call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the call deadline.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// Send issues a tool call and returns its pending handle without waiting.
// It is only valid while the client is ready.
func (c *Client) Send(tool string, params interface{}, opts ...CallOption) (*PendingCall, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	conn, ready := c.conn, c.state == StateReady
	c.mu.Unlock()
	if !ready || conn == nil {
		return nil, ErrNotReady
	}

	id := c.correlator.NextID()
	frame, err := shared.NewToolCallFrame(tool, params, id)
	if err != nil {
		return nil, mcperrors.NewValidationError("params", err.Error())
	}

	pending, err := c.correlator.Register(id, tool, o.timeout)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteFrame(frame); err != nil {
		c.correlator.Reject(id, mcperrors.NewConnectionError(fmt.Sprintf("send %s: %v", tool, err)))
	}
	return pending, nil
}

// Call issues a tool call and waits for its result. A result carrying an
// error is returned as a typed error. When the server rejects the call as
// unauthenticated, a fresh token is issued and the call is retried once.
func (c *Client) Call(ctx context.Context, tool string, params interface{}, opts ...CallOption) (json.RawMessage, error) {
	result, err := c.call(ctx, tool, params, opts)
	if !mcperrors.IsAuth(err) {
		return result, err
	}

	c.logger.Info("call rejected as unauthenticated, re-issuing token", logging.Fields{"tool": tool})
	if err := c.reauthenticate(ctx); err != nil {
		return nil, err
	}
	return c.call(ctx, tool, params, opts)
}

func (c *Client) call(ctx context.Context, tool string, params interface{}, opts []CallOption) (json.RawMessage, error) {
	pending, err := c.Send(tool, params, opts...)
	if err != nil {
		return nil, err
	}
	raw, err := pending.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if body, failed := shared.ResultError(raw); failed {
		mcpErr := mcperrors.FromWire(body.ErrorType, body.Error)
		mcpErr.Field = body.Field
		return nil, mcpErr
	}
	return raw, nil
}

// dial runs one connection attempt through to Ready. A rejected token is
// replaced and presented once more on the same connection. On failure the
// connection is discarded and the caller owns the reconnect decision.
func (c *Client) dial(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.cfg.Dialer.Dial(ctx, c.cfg.URL)
	if err != nil {
		c.setState(StateDisconnected)
		return mcperrors.NewConnectionError(fmt.Sprintf("dial %s: %v", c.cfg.URL, err))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateAuthenticating)
	go c.readLoop(conn)

	sessionID, err := c.authenticate(ctx, conn)
	if mcperrors.IsAuth(err) {
		c.logger.Info("token rejected, retrying with a fresh one", logging.Fields{"error": err})
		c.cfg.Tokens.Invalidate()
		sessionID, err = c.authenticate(ctx, conn)
	}
	if err != nil {
		if mcperrors.IsAuth(err) {
			c.cfg.Tokens.Invalidate()
		}
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
		c.setState(StateDisconnected)
		return err
	}

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return ErrConnectionLost
	}
	c.sessionID = sessionID
	c.attempt = 0
	c.mu.Unlock()

	c.logger.Info("connected", logging.Fields{"session_id": sessionID})
	c.setState(StateReady)
	return nil
}

// authenticate sends a token on conn and waits for the server's answer.
func (c *Client) authenticate(ctx context.Context, conn transport.Conn) (string, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	token, err := c.cfg.Tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	wait := make(chan authResult, 1)
	c.mu.Lock()
	c.authWait = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.authWait == wait {
			c.authWait = nil
		}
		c.mu.Unlock()
	}()

	if err := conn.WriteFrame(shared.NewAuthenticateFrame(token)); err != nil {
		return "", mcperrors.NewConnectionError(fmt.Sprintf("send authenticate: %v", err))
	}

	timer := c.sched.AfterFunc(c.cfg.CallTimeout, func() {
		c.deliverAuth(wait, authResult{err: mcperrors.NewTimeoutError("authentication timed out")})
	})
	defer timer.Stop()

	select {
	case r := <-wait:
		return r.sessionID, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// reauthenticate replaces the token on the live connection.
func (c *Client) reauthenticate(ctx context.Context) error {
	c.cfg.Tokens.Invalidate()

	c.mu.Lock()
	conn, ready := c.conn, c.state == StateReady
	c.mu.Unlock()
	if !ready || conn == nil {
		return ErrNotReady
	}

	sessionID, err := c.authenticate(ctx, conn)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
	return nil
}

// deliverAuth hands r to the current authentication waiter. wait nil means
// whichever waiter is registered. It reports whether anyone was waiting.
func (c *Client) deliverAuth(wait chan authResult, r authResult) bool {
	c.mu.Lock()
	current := c.authWait
	c.mu.Unlock()

	if current == nil || (wait != nil && wait != current) {
		return false
	}
	select {
	case current <- r:
		return true
	default:
		return false
	}
}

func (c *Client) readLoop(conn transport.Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if transport.IsMalformed(err) {
				c.logger.Warn("malformed frame from server", logging.Fields{"error": err})
				continue
			}
			c.handleDrop(conn, err)
			return
		}

		switch frame.Type {
		case shared.FrameAuthenticated:
			c.deliverAuth(nil, authResult{sessionID: frame.SessionID})
		case shared.FrameToolResult:
			if !c.correlator.Resolve(frame.RequestID, frame.Result) {
				c.logger.Debug("dropping response to unknown call", logging.Fields{"request_id": frame.RequestID})
			}
			c.emit(Event{Type: EventToolResult, Tool: frame.Tool, RequestID: frame.RequestID, Result: frame.Result})
		case shared.FrameError:
			err := mcperrors.FromWire(frame.ErrorType, frame.Error)
			if mcperrors.IsAuth(err) && c.deliverAuth(nil, authResult{err: err}) {
				continue
			}
			c.logger.Warn("server error", logging.Fields{"error": err})
			c.emit(Event{Type: EventServerError, Err: err})
		default:
			c.logger.Debug("ignoring frame", logging.Fields{"frame_type": string(frame.Type)})
		}
	}
}

// handleDrop reacts to the loss of conn. Only a drop of a ready connection
// schedules a reconnect; attempts in progress report the failure to dial.
func (c *Client) handleDrop(conn transport.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	wasReady := c.state == StateReady
	closed := c.closed
	c.mu.Unlock()

	_ = conn.Close()
	c.deliverAuth(nil, authResult{err: ErrConnectionLost})
	failed := c.correlator.FailAll(ErrConnectionLost)
	c.logger.Warn("connection lost", logging.Fields{"error": cause, "failed_calls": failed})
	c.setState(StateDisconnected)

	if wasReady && !closed {
		c.scheduleReconnect()
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.gaveUp {
		c.mu.Unlock()
		return
	}
	c.attempt++
	attempt := c.attempt
	delay, ok := c.cfg.Backoff.Delay(attempt)
	if !ok {
		c.gaveUp = true
		c.broadcastLocked()
		c.mu.Unlock()

		c.logger.Error("giving up reconnecting", logging.Fields{"attempt": attempt - 1})
		c.emit(Event{Type: EventGaveUp, Attempt: attempt - 1, Err: ErrGaveUp})
		return
	}
	c.reconnect = c.sched.AfterFunc(delay, c.retry)
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", logging.Fields{"attempt": attempt, "delay": delay})
	c.emit(Event{Type: EventReconnectScheduled, Attempt: attempt, Delay: delay})
}

func (c *Client) retry() {
	c.mu.Lock()
	if c.closed || c.gaveUp || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.logger.Warn("reconnect failed", logging.Fields{"error": err})
		c.scheduleReconnect()
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.broadcastLocked()
	c.mu.Unlock()

	c.emit(Event{Type: EventStateChanged, State: s})
}

// broadcastLocked wakes WaitReady callers. c.mu must be held.
func (c *Client) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("event dropped", logging.Fields{"event": string(ev.Type)})
	}
}
