// Package emulator implements the emulator tool catalogue served over the MCP connection.
package emulator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/handler"
	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
)

// MetricsSource reports host and process metrics by name.
type MetricsSource interface {
	Metrics(ctx context.Context) map[string]float64
}

// Deps are the collaborators the tool handlers share.
type Deps struct {
	Sessions   domain.SessionRepository
	Assets     domain.AssetStore
	SaveStates domain.SaveStateStore
	Runtime    Runtime
	// Metrics is optional; without it only runtime metrics are reported.
	Metrics MetricsSource
	Builtin []BuiltinROM
	Logger  *logging.Logger
}

// NewTools returns one handler per tool in the catalogue.
func NewTools(deps Deps) []handler.ToolHandler {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Runtime == nil {
		deps.Runtime = NewSimulatedRuntime(0)
	}
	return []handler.ToolHandler{
		&LoadEmulatorHandler{deps: deps},
		&UploadROMHandler{deps: deps},
		&SaveGameStateHandler{deps: deps},
		&LoadGameStateHandler{deps: deps},
		&PerformanceHandler{deps: deps},
		&ListROMsHandler{deps: deps},
	}
}

func decodeParams(call domain.ToolCall, v interface{}) error {
	if len(call.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(call.Params, v); err != nil {
		return mcperrors.NewValidationError("params", err.Error())
	}
	return nil
}

// splitAssetPath returns the category component of an asset path, with or
// without the ROM root prefix.
func splitAssetPath(assetPath string) (category string, builtin bool) {
	p := strings.TrimPrefix(assetPath, domain.ROMRoot+"/")
	if rest, ok := strings.CutPrefix(p, "builtin/"); ok {
		p, builtin = rest, true
	}
	category, _, _ = strings.Cut(p, "/")
	return category, builtin
}

func findBuiltin(builtin []BuiltinROM, assetPath string) bool {
	assetPath = strings.TrimPrefix(assetPath, domain.ROMRoot+"/")
	for _, b := range builtin {
		if b.StoredPath() == assetPath {
			return true
		}
	}
	return false
}

func sessionExists(ctx context.Context, sessions domain.SessionRepository, id string) error {
	if sessions == nil {
		return nil
	}
	_, err := sessions.GetSession(ctx, id)
	return err
}
