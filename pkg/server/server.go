// Package server embeds the emulator MCP server in another program.
package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/FreePeak/emulator-mcp-server/internal/builder"
	"github.com/FreePeak/emulator-mcp-server/internal/config"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

// Option configures a Server.
type Option func(*builder.ServerBuilder)

// WithName sets the name reported by the health endpoint.
func WithName(name string) Option {
	return func(b *builder.ServerBuilder) { b.WithName(name) }
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(version string) Option {
	return func(b *builder.ServerBuilder) { b.WithVersion(version) }
}

// WithLogger routes server logs to l.
func WithLogger(l *zap.Logger) Option {
	return func(b *builder.ServerBuilder) { b.WithLogger(logging.FromZap(l)) }
}

// Server is an emulator MCP server built from a config file and EMUMCP_*
// environment variables.
type Server struct {
	app *builder.App
}

// New loads the config at path (empty for environment only) and wires the server.
func New(ctx context.Context, path string, opts ...Option) (*Server, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	b := builder.NewServerBuilder(cfg)
	for _, opt := range opts {
		opt(b)
	}
	app, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	return &Server{app: app}, nil
}

// Handler returns the HTTP handler serving the token endpoint, the
// websocket endpoint and introspection routes.
func (s *Server) Handler() http.Handler {
	return s.app.HTTP.Handler()
}

// Tools returns the definitions of the served tools.
func (s *Server) Tools() []*types.Tool {
	return s.app.Server.Tools()
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.app.Run(ctx)
}

// Close releases storage and token store connections.
func (s *Server) Close() error {
	return s.app.Close()
}
