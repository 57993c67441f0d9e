package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/handler"
	"github.com/FreePeak/emulator-mcp-server/pkg/tools"
)

func noop(name string) handler.Func {
	return handler.Func{
		Tool: tools.NewTool(name),
		Fn: func(context.Context, domain.ToolCall) (interface{}, error) {
			return nil, nil
		},
	}
}

func TestRegistry(t *testing.T) {
	registry, err := NewRegistry(noop("upload_rom"), noop("load_emulator"))
	require.NoError(t, err)
	assert.Equal(t, 2, registry.Len())

	h, ok := registry.Lookup("upload_rom")
	require.True(t, ok)
	assert.Equal(t, "upload_rom", h.Definition().Name)

	_, ok = registry.Lookup("unknown")
	assert.False(t, ok)

	defs := registry.Tools()
	require.Len(t, defs, 2)
	assert.Equal(t, "load_emulator", defs[0].Name)
	assert.Equal(t, "upload_rom", defs[1].Name)
}

func TestRegistryRejectsBadTables(t *testing.T) {
	_, err := NewRegistry(noop("a"), noop("a"))
	assert.Error(t, err)

	_, err = NewRegistry(noop(""))
	assert.Error(t, err)
}
