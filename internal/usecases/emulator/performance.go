package emulator

import (
	"context"

	"github.com/FreePeak/emulator-mcp-server/internal/domain"
	"github.com/FreePeak/emulator-mcp-server/internal/domain/shared"
	"github.com/FreePeak/emulator-mcp-server/pkg/tools"
	"github.com/FreePeak/emulator-mcp-server/pkg/types"
)

// Runtime metric names
const (
	MetricFPS            = "fps"
	MetricFrameTimeMs    = "frame_time_ms"
	MetricFramesRendered = "frames_rendered"
	MetricUptimeSeconds  = "uptime_seconds"
)

// PerformanceHandler reports runtime and host metrics for a session.
type PerformanceHandler struct {
	deps Deps
}

// Definition implements handler.ToolHandler.
func (h *PerformanceHandler) Definition() *types.Tool {
	return tools.NewTool(shared.ToolGetEmulatorPerformance,
		tools.WithDescription("Report emulator and host performance metrics"),
		tools.WithString("sessionId", tools.Description("Session to report on"), tools.Required()),
		tools.WithArray("metrics",
			tools.Description("Metric names to include; all when omitted"),
			tools.Items("string"),
		),
	)
}

// Handle implements handler.ToolHandler. Unknown metric names are ignored.
func (h *PerformanceHandler) Handle(ctx context.Context, call domain.ToolCall) (interface{}, error) {
	var params shared.GetEmulatorPerformanceParams
	if err := decodeParams(call, &params); err != nil {
		return nil, err
	}
	if err := sessionExists(ctx, h.deps.Sessions, params.SessionID); err != nil {
		return nil, err
	}

	all := make(map[string]float64)
	if h.deps.Metrics != nil {
		for name, v := range h.deps.Metrics.Metrics(ctx) {
			all[name] = v
		}
	}
	if stats, ok := h.deps.Runtime.Stats(params.SessionID); ok {
		all[MetricFPS] = stats.FPS
		all[MetricFrameTimeMs] = stats.FrameTimeMs
		all[MetricFramesRendered] = float64(stats.FramesRendered)
		all[MetricUptimeSeconds] = stats.Uptime.Seconds()
	}

	if len(params.Metrics) == 0 {
		return all, nil
	}
	out := make(map[string]float64, len(params.Metrics))
	for _, name := range params.Metrics {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out, nil
}
