package handler

import (
	"context"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

// ToolHandler is one entry of the tool registry: a schema plus the code behind it.
type ToolHandler interface {
	// Definition returns the tool's name and input schema.
	Definition() *types.Tool

	// Handle executes an already validated call. It returns a result value that
	// encodes to a JSON object, or an error that is reported in the result envelope.
	Handle(ctx context.Context, call domain.ToolCall) (interface{}, error)
}

// Func adapts a plain function to ToolHandler.
type Func struct {
	Tool *types.Tool
	Fn   func(ctx context.Context, call domain.ToolCall) (interface{}, error)
}

// Definition implements ToolHandler.
func (f Func) Definition() *types.Tool {
	return f.Tool
}

// Handle implements ToolHandler.
func (f Func) Handle(ctx context.Context, call domain.ToolCall) (interface{}, error) {
	return f.Fn(ctx, call)
}
