package server

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/FreePeak/emulator-mcp-server/internal/domain/handler"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

// Registry is the immutable table of tools, built once at startup.
type Registry struct {
	handlers map[string]handler.ToolHandler
	tools    []*types.Tool
}

// NewRegistry builds a registry. Tool names must be non-empty and unique.
func NewRegistry(handlers ...handler.ToolHandler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]handler.ToolHandler, len(handlers))}
	for _, h := range handlers {
		def := h.Definition()
		if def == nil || def.Name == "" {
			return nil, errors.Errorf("tool handler %T has no name", h)
		}
		if _, exists := r.handlers[def.Name]; exists {
			return nil, errors.Errorf("duplicate tool %q", def.Name)
		}
		r.handlers[def.Name] = h
		r.tools = append(r.tools, def)
	}
	sort.Slice(r.tools, func(i, j int) bool { return r.tools[i].Name < r.tools[j].Name })
	return r, nil
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (handler.ToolHandler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Tools returns every tool definition sorted by name.
func (r *Registry) Tools() []*types.Tool {
	return append([]*types.Tool(nil), r.tools...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.handlers)
}
