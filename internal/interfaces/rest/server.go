// Package rest provides the HTTP interface for the MCP server: the token
// side-channel, the websocket endpoint and read-only introspection routes.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/FreePeak/emulator-mcp-server/internal/domain/transport"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/wsconn"
	"github.com/FreePeak/emulator-mcp-server/internal/usecases"
)

// ConnServer serves one MCP connection until it closes.
type ConnServer interface {
	ServeConn(ctx context.Context, conn transport.Conn) error
}

// MCPServer represents the HTTP server for the MCP protocol.
type MCPServer struct {
	service  *usecases.ServerService
	issuer   TokenIssuer
	conns    ConnServer
	web      WebSessions
	upgrader *wsconn.Upgrader
	logger   *logging.Logger

	httpServer *http.Server
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// Option configures an MCPServer.
type Option func(*MCPServer)

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *MCPServer) {
		s.logger = logger
	}
}

// WithConnOptions sets the websocket connection limits
func WithConnOptions(opts wsconn.Options) Option {
	return func(s *MCPServer) {
		s.upgrader = wsconn.NewUpgrader(opts)
	}
}

// NewMCPServer creates a new MCP server listening on addr.
func NewMCPServer(service *usecases.ServerService, issuer TokenIssuer, conns ConnServer, web WebSessions, addr string, opts ...Option) *MCPServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MCPServer{
		service:  service,
		issuer:   issuer,
		conns:    conns,
		web:      web,
		upgrader: wsconn.NewUpgrader(wsconn.Options{}),
		logger:   logging.NewNop(),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes sets up all HTTP routes
func (s *MCPServer) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.logger))

	r.Post("/auth/token", s.IssueToken)
	r.Get("/ws", s.ServeWebsocket)

	r.Get("/healthz", s.Health)
	r.Get("/tools", s.ListTools)
	r.Get("/tools/{name}", s.GetTool)
	r.Get("/categories", s.ListCategories)

	return r
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *MCPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the MCP server. It blocks until the server stops.
func (s *MCPServer) Start() error {
	s.logger.Info("HTTP server listening", logging.Fields{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen")
	}
	return nil
}

// Stop gracefully stops the HTTP listener and ends websocket connections.
func (s *MCPServer) Stop(ctx context.Context) error {
	s.cancel()
	return s.httpServer.Shutdown(ctx)
}

// ServeWebsocket handles GET /ws
func (s *MCPServer) ServeWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		// The upgrader has already replied.
		s.logger.Warn("websocket upgrade failed", logging.Fields{"error": err})
		return
	}

	if err := s.conns.ServeConn(s.baseCtx, conn); err != nil {
		s.logger.Warn("connection ended", logging.Fields{"error": err, "remote": r.RemoteAddr})
	}
}

// Health handles GET /healthz
func (s *MCPServer) Health(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "status unavailable", err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"server": status,
	})
}

// ListTools handles GET /tools
func (s *MCPServer) ListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.service.ListTools(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list tools", err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

// GetTool handles GET /tools/{name}
func (s *MCPServer) GetTool(w http.ResponseWriter, r *http.Request) {
	tool, err := s.service.GetTool(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "tool not found", err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, tool)
}

// ListCategories handles GET /categories
func (s *MCPServer) ListCategories(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"categories": s.service.Categories()})
}

func (s *MCPServer) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encode response", logging.Fields{"error": err})
	}
}

func (s *MCPServer) respondError(w http.ResponseWriter, status int, message, details string) {
	s.respondJSON(w, status, map[string]string{
		"error":   message,
		"details": details,
	})
}
