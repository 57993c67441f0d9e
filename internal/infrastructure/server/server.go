package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/shared"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/transport"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/emulator-mcp-server/pkg/tools"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

// DefaultMaxConcurrentCalls bounds in-flight handlers per connection.
const DefaultMaxConcurrentCalls = 16

// TokenVerifier checks bearer tokens presented in authenticate frames.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.TokenClaims, error)
}

// Server dispatches tool calls arriving on authenticated connections.
type Server struct {
	registry *Registry
	sessions *SessionManager
	verifier TokenVerifier
	logger   *logging.Logger
	now      func() time.Time

	maxConcurrent int

	mu     sync.Mutex
	conns  map[string]transport.Conn
	active map[transport.Conn]struct{}
	closed bool
}

// NewServer creates a server around an immutable registry and a session manager.
func NewServer(registry *Registry, sessions *SessionManager, verifier TokenVerifier) *Server {
	s := &Server{
		registry:      registry,
		sessions:      sessions,
		verifier:      verifier,
		logger:        logging.NewNop(),
		now:           time.Now,
		maxConcurrent: DefaultMaxConcurrentCalls,
		conns:         make(map[string]transport.Conn),
		active:        make(map[transport.Conn]struct{}),
	}

	prev := sessions.onEvict
	sessions.onEvict = func(id string) {
		s.dropSession(id)
		if prev != nil {
			prev(id)
		}
	}
	return s
}

// WithLogger sets the logger
func (s *Server) WithLogger(logger *logging.Logger) *Server {
	s.logger = logger
	return s
}

// WithMaxConcurrentCalls bounds the number of handlers running per connection
func (s *Server) WithMaxConcurrentCalls(n int) *Server {
	if n > 0 {
		s.maxConcurrent = n
	}
	return s
}

// WithClock overrides the time source used for token expiry checks
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}

// Tools returns the tool catalogue
func (s *Server) Tools() []*types.Tool {
	return s.registry.Tools()
}

// Sessions returns the session manager
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// connection is the per-socket state of ServeConn.
type connection struct {
	conn      transport.Conn
	sessionID string
	logger    *logging.Logger
}

// ServeConn runs the read loop of one connection until it closes or ctx ends.
// Tool handlers run on a bounded pool so slow calls do not stall the loop.
func (s *Server) ServeConn(ctx context.Context, conn transport.Conn) error {
	if s.verifier == nil {
		return ErrNoVerifier
	}
	if !s.track(conn) {
		_ = conn.Close()
		return ErrServerClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &connection{conn: conn, logger: s.logger}
	handlers := pool.New().WithMaxGoroutines(s.maxConcurrent)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	defer func() {
		stop()
		cancel()
		handlers.Wait()
		s.untrack(conn, c.sessionID)
		if c.sessionID != "" {
			s.sessions.Close(context.Background(), c.sessionID)
		}
		_ = conn.Close()
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if transport.IsMalformed(err) {
				c.logger.Warn("malformed frame", logging.Fields{"error": err})
				s.write(c, shared.NewErrorFrame(err.Error(), string(mcperrors.ErrorTypeValidation)))
				continue
			}
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch frame.Type {
		case shared.FrameAuthenticate:
			s.handleAuthenticate(ctx, c, frame)
		case shared.FrameToolCall:
			if !s.admitCall(ctx, c, frame) {
				continue
			}
			handlers.Go(func() {
				s.dispatch(ctx, c, frame)
			})
		default:
			s.write(c, shared.NewErrorFrame(
				fmt.Sprintf("unexpected frame type %q", frame.Type),
				string(mcperrors.ErrorTypeValidation),
			))
		}
	}
}

// handleAuthenticate admits or re-admits a connection.
func (s *Server) handleAuthenticate(ctx context.Context, c *connection, frame shared.Frame) {
	claims, err := s.verifier.Verify(ctx, frame.Token)
	if err != nil {
		c.logger.Warn("authentication failed", logging.Fields{"error": err})
		s.write(c, shared.NewErrorFrame(err.Error(), string(mcperrors.TypeOf(err))))
		return
	}

	var session domain.Session
	if c.sessionID == "" {
		session = s.sessions.Open(ctx, claims)
		c.sessionID = session.ID
		c.logger = s.logger.With(logging.Fields{"session_id": session.ID})
		s.bind(session.ID, c.conn)
	} else {
		session, err = s.sessions.Reauthenticate(ctx, c.sessionID, claims)
		if err != nil {
			s.write(c, shared.NewErrorFrame(err.Error(), string(mcperrors.TypeOf(err))))
			return
		}
		c.logger.Debug("session re-authenticated")
	}

	s.write(c, shared.NewAuthenticatedFrame(session.ID))
}

// admitCall rejects tool calls on connections without a live token.
func (s *Server) admitCall(ctx context.Context, c *connection, frame shared.Frame) bool {
	if c.sessionID == "" {
		s.writeError(c, frame, domain.ErrUnauthenticated)
		return false
	}

	session, err := s.sessions.GetSession(ctx, c.sessionID)
	if err != nil {
		s.writeError(c, frame, domain.ErrUnauthenticated)
		return false
	}
	if !session.Authenticated {
		s.writeError(c, frame, domain.ErrUnauthenticated)
		return false
	}
	if session.TokenExpired(s.now()) {
		s.sessions.Deauthenticate(ctx, c.sessionID)
		s.writeError(c, frame, domain.ErrTokenExpired)
		return false
	}

	s.sessions.Touch(c.sessionID)
	return true
}

// dispatch validates params, runs the handler and writes the tool_result.
func (s *Server) dispatch(ctx context.Context, c *connection, frame shared.Frame) {
	logger := c.logger.With(logging.Fields{"tool": frame.Tool, "request_id": frame.RequestID})
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool handler panicked", logging.Fields{"panic": fmt.Sprint(r)})
			s.writeError(c, frame, mcperrors.NewInternalError("tool handler failed"))
		}
	}()

	h, ok := s.registry.Lookup(frame.Tool)
	if !ok {
		s.writeError(c, frame, domain.NewToolNotFoundError(frame.Tool))
		return
	}

	if err := tools.ValidateParams(h.Definition(), frame.Params); err != nil {
		logger.Debug("params rejected", logging.Fields{"error": err})
		s.writeError(c, frame, err)
		return
	}

	session, err := s.sessions.GetSession(ctx, c.sessionID)
	if err != nil {
		s.writeError(c, frame, err)
		return
	}

	result, err := h.Handle(ctx, domain.ToolCall{
		Name:      frame.Tool,
		Params:    frame.Params,
		RequestID: frame.RequestID,
		Session:   session,
	})
	if err != nil {
		switch mcperrors.TypeOf(err) {
		case mcperrors.ErrorTypeIO, mcperrors.ErrorTypeInternal:
			logger.Error("tool call failed", logging.Fields{"error": err})
		default:
			logger.Debug("tool call rejected", logging.Fields{"error": err})
		}
		s.writeError(c, frame, err)
		return
	}

	raw, err := shared.EncodeResult(result)
	if err != nil {
		logger.Error("encode result", logging.Fields{"error": err})
		s.writeError(c, frame, mcperrors.NewInternalError("result is not a JSON object"))
		return
	}

	logger.Debug("tool call completed", logging.Fields{"duration": time.Since(start)})
	s.write(c, shared.NewToolResultFrame(frame.Tool, raw, frame.RequestID))
}

// writeError reports err inside a tool_result so the caller's pending call resolves.
func (s *Server) writeError(c *connection, frame shared.Frame, err error) {
	body := shared.ErrorResult{
		Error:     err.Error(),
		ErrorType: string(mcperrors.TypeOf(err)),
	}
	var mcpErr *mcperrors.MCPError
	if errors.As(err, &mcpErr) {
		body.Field = mcpErr.Field
	}

	raw, encErr := shared.EncodeResult(body)
	if encErr != nil {
		c.logger.Error("encode error result", logging.Fields{"error": encErr})
		return
	}
	s.write(c, shared.NewToolResultFrame(frame.Tool, raw, frame.RequestID))
}

func (s *Server) write(c *connection, frame shared.Frame) {
	if err := c.conn.WriteFrame(frame); err != nil && !errors.Is(err, transport.ErrClosed) {
		c.logger.Warn("write frame", logging.Fields{"error": err, "frame_type": string(frame.Type)})
	}
}

func (s *Server) track(conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.active[conn] = struct{}{}
	return true
}

func (s *Server) bind(sessionID string, conn transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[sessionID] = conn
}

func (s *Server) untrack(conn transport.Conn, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, conn)
	if sessionID != "" && s.conns[sessionID] == conn {
		delete(s.conns, sessionID)
	}
}

// dropSession closes the connection of an evicted session.
func (s *Server) dropSession(id string) {
	s.mu.Lock()
	conn, ok := s.conns[id]
	delete(s.conns, id)
	s.mu.Unlock()

	if ok {
		_ = conn.WriteFrame(shared.NewErrorFrame("session evicted", string(mcperrors.ErrorTypeConnection)))
		_ = conn.Close()
	}
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown closes every connection and refuses new ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := make([]transport.Conn, 0, len(s.active))
	for conn := range s.active {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for s.ConnCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
