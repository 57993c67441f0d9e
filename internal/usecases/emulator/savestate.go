package emulator

import (
	"context"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/shared"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/emulator-mcp-server/pkg/tools"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

func slotParam() tools.ToolOption {
	return tools.WithInteger("slot",
		tools.Description("Save slot"),
		tools.Required(),
		tools.Minimum(domain.MinSlot),
		tools.Maximum(domain.MaxSlot),
	)
}

// stateOwner resolves the session whose slots a call touches. An empty id means
// the caller's own session. Naming another session is allowed but logged.
func (d Deps) stateOwner(call domain.ToolCall, requested string) string {
	if requested == "" {
		return call.Session.ID
	}
	if requested != call.Session.ID {
		d.Logger.Warn("save slots of another session accessed", logging.Fields{
			"tool":              call.Name,
			"session_id":        call.Session.ID,
			"target_session_id": requested,
		})
	}
	return requested
}

// SaveGameStateHandler writes a state blob into a numbered slot.
type SaveGameStateHandler struct {
	deps Deps
}

// Definition implements handler.ToolHandler.
func (h *SaveGameStateHandler) Definition() *types.Tool {
	return tools.NewTool(shared.ToolSaveGameState,
		tools.WithDescription("Save emulator state to a slot"),
		tools.WithString("sessionId", tools.Description("Session the state belongs to, empty for the caller's own"), tools.Required()),
		tools.WithString("assetName", tools.Description("ROM the state belongs to"), tools.Required()),
		tools.WithString("stateData", tools.Description("Opaque emulator state"), tools.Required()),
		slotParam(),
	)
}

// Handle implements handler.ToolHandler.
func (h *SaveGameStateHandler) Handle(ctx context.Context, call domain.ToolCall) (interface{}, error) {
	var params shared.SaveGameStateParams
	if err := decodeParams(call, &params); err != nil {
		return nil, err
	}

	record, err := h.deps.SaveStates.SaveState(ctx, h.deps.stateOwner(call, params.SessionID), params.AssetName, params.Slot, []byte(params.StateData))
	if err != nil {
		return nil, err
	}

	return shared.SaveGameStateResult{
		SavePath: domain.SaveStatePath(record.SessionID, record.AssetName, record.Slot),
		Slot:     record.Slot,
		SavedAt:  record.SavedAt,
	}, nil
}

// LoadGameStateHandler reads the state blob stored in a slot.
type LoadGameStateHandler struct {
	deps Deps
}

// Definition implements handler.ToolHandler.
func (h *LoadGameStateHandler) Definition() *types.Tool {
	return tools.NewTool(shared.ToolLoadGameState,
		tools.WithDescription("Load emulator state from a slot"),
		tools.WithString("sessionId", tools.Description("Session the state belongs to, empty for the caller's own"), tools.Required()),
		tools.WithString("assetName", tools.Description("ROM the state belongs to"), tools.Required()),
		slotParam(),
	)
}

// Handle implements handler.ToolHandler.
func (h *LoadGameStateHandler) Handle(ctx context.Context, call domain.ToolCall) (interface{}, error) {
	var params shared.LoadGameStateParams
	if err := decodeParams(call, &params); err != nil {
		return nil, err
	}

	record, err := h.deps.SaveStates.LoadState(ctx, h.deps.stateOwner(call, params.SessionID), params.AssetName, params.Slot)
	if err != nil {
		return nil, err
	}

	return shared.LoadGameStateResult{
		StateData: string(record.Payload),
		Slot:      record.Slot,
		SavedAt:   record.SavedAt,
	}, nil
}
