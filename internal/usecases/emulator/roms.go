package emulator

import (
	"context"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/resource"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/shared"
	"github.com/FreePeak/emulator-mcp-server/pkg/tools"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

// ListROMsHandler lists uploaded ROMs of a category, optionally with the builtin set.
type ListROMsHandler struct {
	deps Deps
}

// Definition implements handler.ToolHandler.
func (h *ListROMsHandler) Definition() *types.Tool {
	return tools.NewTool(shared.ToolListAvailableROMs,
		tools.WithDescription("List ROMs available for a category"),
		tools.WithString("category",
			tools.Description("Emulator category"),
			tools.Required(),
			tools.Enum(resource.Categories()...),
		),
		tools.WithBoolean("includeBuiltin",
			tools.Description("Include ROMs shipped with the server"),
			tools.Required(),
		),
	)
}

// Handle implements handler.ToolHandler.
func (h *ListROMsHandler) Handle(ctx context.Context, call domain.ToolCall) (interface{}, error) {
	var params shared.ListAvailableROMsParams
	if err := decodeParams(call, &params); err != nil {
		return nil, err
	}

	roms := []shared.ROMEntry{}
	if params.IncludeBuiltin {
		for _, b := range h.deps.Builtin {
			if b.Category != params.Category {
				continue
			}
			roms = append(roms, shared.ROMEntry{
				Name:       b.Name,
				StoredPath: b.StoredPath(),
				Builtin:    true,
			})
		}
	}

	records, err := h.deps.Assets.List(ctx, params.Category)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		roms = append(roms, shared.ROMEntry{
			Name:       r.DeclaredName,
			StoredPath: r.StoredPath(),
			Size:       r.SizeBytes,
			UploadedAt: r.UploadedAt,
		})
	}

	return shared.ListAvailableROMsResult{ROMs: roms}, nil
}
