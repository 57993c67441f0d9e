package emulator

import (
	"context"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/resource"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/shared"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/emulator-mcp-server/pkg/tools"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

// UploadROMHandler validates an uploaded ROM and stores it when accepted.
// Rejected bytes are never written.
type UploadROMHandler struct {
	deps Deps
}

// Definition implements handler.ToolHandler.
func (h *UploadROMHandler) Definition() *types.Tool {
	return tools.NewTool(shared.ToolUploadROM,
		tools.WithDescription("Upload and validate a ROM image"),
		tools.WithString("category",
			tools.Description("Emulator category the ROM targets"),
			tools.Required(),
			tools.Enum(resource.Categories()...),
		),
		tools.WithString("fileName",
			tools.Description("Original file name, including extension"),
			tools.Required(),
		),
		tools.WithString("fileData",
			tools.Description("Base64-encoded file contents"),
			tools.Required(),
		),
		tools.WithInteger("fileSize",
			tools.Description("Declared size in bytes"),
			tools.Required(),
			tools.Minimum(0),
		),
	)
}

// Handle implements handler.ToolHandler.
func (h *UploadROMHandler) Handle(ctx context.Context, call domain.ToolCall) (interface{}, error) {
	var params shared.UploadROMParams
	if err := decodeParams(call, &params); err != nil {
		return nil, err
	}

	res, data := resource.ValidateEncoded(params.Category, params.FileName, params.FileData, params.FileSize)
	if !res.Accepted {
		h.deps.Logger.Info("upload rejected", logging.Fields{
			"session_id": call.Session.ID,
			"category":   params.Category,
			"reason":     res.Reason,
		})
		return nil, mcperrors.NewValidationError(res.Reason, res.Detail)
	}

	record, err := h.deps.Assets.Store(ctx, params.Category, params.FileName, data)
	if err != nil {
		return nil, err
	}

	return shared.UploadROMResult{
		StoredPath: record.StoredPath(),
		FileName:   record.DeclaredName,
		Size:       record.SizeBytes,
	}, nil
}
