// Package usecases implements the application business logic for the MCP server.
package usecases

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/resource"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

// ToolCatalog exposes the registered tool definitions.
type ToolCatalog interface {
	Tools() []*types.Tool
}

// ServerService answers the introspection queries served next to the MCP connection.
type ServerService struct {
	name      string
	version   string
	tools     ToolCatalog
	sessions  domain.SessionRepository
	startedAt time.Time
	now       func() time.Time
}

// ServerConfig contains configuration for the ServerService.
type ServerConfig struct {
	Name     string
	Version  string
	Tools    ToolCatalog
	Sessions domain.SessionRepository
	// Now defaults to time.Now.
	Now func() time.Time
}

// Status is a point-in-time summary of the server.
type Status struct {
	Name     string  `json:"name"`
	Version  string  `json:"version"`
	Tools    int     `json:"tools"`
	Sessions int     `json:"sessions"`
	Uptime   float64 `json:"uptimeSeconds"`
}

// CategoryInfo describes the upload rules of one asset category.
type CategoryInfo struct {
	Category    string   `json:"category"`
	Description string   `json:"description"`
	MaxSize     int64    `json:"maxSize"`
	Extensions  []string `json:"extensions"`
	// Signature lists the accepted magic sequences in hex, empty when any content passes.
	Signature []string `json:"signature,omitempty"`
	Offset    int      `json:"offset"`
}

// NewServerService creates a new ServerService with the given collaborators.
func NewServerService(config ServerConfig) *ServerService {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &ServerService{
		name:      config.Name,
		version:   config.Version,
		tools:     config.Tools,
		sessions:  config.Sessions,
		startedAt: now(),
		now:       now,
	}
}

// ServerInfo returns the server name and version.
func (s *ServerService) ServerInfo() (string, string) {
	return s.name, s.version
}

// ListTools returns every registered tool definition.
func (s *ServerService) ListTools(ctx context.Context) ([]*types.Tool, error) {
	if s.tools == nil {
		return []*types.Tool{}, nil
	}
	return s.tools.Tools(), nil
}

// GetTool returns a tool definition by its name.
func (s *ServerService) GetTool(ctx context.Context, name string) (*types.Tool, error) {
	tools, err := s.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	for _, tool := range tools {
		if tool.Name == name {
			return tool, nil
		}
	}
	return nil, domain.NewToolNotFoundError(name)
}

// ListSessions returns all live sessions.
func (s *ServerService) ListSessions(ctx context.Context) ([]domain.Session, error) {
	if s.sessions == nil {
		return []domain.Session{}, nil
	}
	sessions, err := s.sessions.ListSessions(ctx)
	if err != nil {
		return nil, mcperrors.Wrap(err, "list sessions")
	}
	return sessions, nil
}

// Status summarises the server for health checks.
func (s *ServerService) Status(ctx context.Context) (Status, error) {
	tools, err := s.ListTools(ctx)
	if err != nil {
		return Status{}, err
	}
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Name:     s.name,
		Version:  s.version,
		Tools:    len(tools),
		Sessions: len(sessions),
		Uptime:   s.now().Sub(s.startedAt).Seconds(),
	}, nil
}

// Categories returns the upload rules of every asset category, sorted by name.
func (s *ServerService) Categories() []CategoryInfo {
	return DescribeCategories()
}

// DescribeCategories renders the validation rule table.
func DescribeCategories() []CategoryInfo {
	rules := resource.Rules()
	out := make([]CategoryInfo, 0, len(rules))
	for _, rule := range rules {
		info := CategoryInfo{
			Category:    rule.Category,
			Description: rule.Description,
			MaxSize:     rule.MaxSize,
			Extensions:  rule.Extensions,
			Offset:      rule.Signature.Offset,
		}
		for _, magic := range rule.Signature.Magic {
			info.Signature = append(info.Signature, hex.EncodeToString(magic))
		}
		out = append(out, info)
	}
	return out
}
