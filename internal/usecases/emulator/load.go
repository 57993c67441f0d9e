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

// LoadEmulatorHandler starts an emulation context for the calling session.
type LoadEmulatorHandler struct {
	deps Deps
}

// Definition implements handler.ToolHandler.
func (h *LoadEmulatorHandler) Definition() *types.Tool {
	return tools.NewTool(shared.ToolLoadEmulator,
		tools.WithDescription("Load an emulator context for the current session"),
		tools.WithString("category",
			tools.Description("Emulator category"),
			tools.Required(),
			tools.Enum(resource.Categories()...),
		),
		tools.WithString("assetPath",
			tools.Description("Stored path of the ROM to boot, as returned by upload_rom or list_available_roms"),
		),
		tools.WithObject("config",
			tools.Description("Emulator options such as fps"),
		),
	)
}

// Handle implements handler.ToolHandler.
func (h *LoadEmulatorHandler) Handle(ctx context.Context, call domain.ToolCall) (interface{}, error) {
	var params shared.LoadEmulatorParams
	if err := decodeParams(call, &params); err != nil {
		return nil, err
	}
	if params.AssetPath != "" {
		if err := h.checkAsset(ctx, params.Category, params.AssetPath); err != nil {
			return nil, err
		}
	}

	sessionID := call.Session.ID
	logger := h.deps.Logger.With(logging.Fields{"session_id": sessionID, "category": params.Category})

	if err := h.deps.Sessions.BeginLoad(ctx, sessionID, params.Category); err != nil {
		return nil, err
	}

	loadErr := h.deps.Runtime.Load(ctx, sessionID, params.Category, params.AssetPath, params.Config)
	if _, err := h.deps.Sessions.CompleteLoad(ctx, sessionID, loadErr); err != nil {
		h.deps.Runtime.Unload(sessionID)
		return nil, err
	}
	if loadErr != nil {
		h.deps.Runtime.Unload(sessionID)
		logger.Warn("emulator load failed", logging.Fields{"error": loadErr})
		if ctx.Err() != nil {
			return nil, mcperrors.NewTimeoutError("emulator load cancelled")
		}
		return nil, mcperrors.Wrap(loadErr, "load emulator")
	}

	logger.Info("emulator loaded", logging.Fields{"asset": params.AssetPath})
	return shared.LoadEmulatorResult{
		SessionID: sessionID,
		Status:    string(domain.SessionReady),
	}, nil
}

func (h *LoadEmulatorHandler) checkAsset(ctx context.Context, category, assetPath string) error {
	assetCategory, builtin := splitAssetPath(assetPath)
	if assetCategory != category {
		return mcperrors.NewValidationError("assetPath", "asset does not belong to category "+category)
	}

	if builtin {
		if !findBuiltin(h.deps.Builtin, assetPath) {
			return domain.NewAssetNotFoundError(assetPath)
		}
		return nil
	}

	ok, err := h.deps.Assets.Exists(ctx, assetPath)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewAssetNotFoundError(assetPath)
	}
	return nil
}
