package emulator

import (
	"context"
	"sync"
	"time"
)

// DefaultTargetFPS is the frame rate a loaded context reports unless configured.
const DefaultTargetFPS = 60.0

// RuntimeStats describes a loaded emulation context.
type RuntimeStats struct {
	Category       string
	AssetPath      string
	FPS            float64
	FrameTimeMs    float64
	FramesRendered uint64
	Uptime         time.Duration
}

// Runtime is the emulation collaborator. The render loop lives behind it.
type Runtime interface {
	// Load starts an emulation context for a session, replacing any previous one.
	Load(ctx context.Context, sessionID, category, assetPath string, config map[string]interface{}) error

	// Stats reports on the session's context, if one is loaded.
	Stats(sessionID string) (RuntimeStats, bool)

	// Unload discards the session's context.
	Unload(sessionID string)
}

// SimulatedRuntime stands in for a real emulator core: loading takes a fixed
// delay and frame counters advance with wall time.
type SimulatedRuntime struct {
	delay time.Duration
	now   func() time.Time

	mu     sync.RWMutex
	loaded map[string]simulatedContext
}

type simulatedContext struct {
	category  string
	assetPath string
	fps       float64
	startedAt time.Time
}

var _ Runtime = (*SimulatedRuntime)(nil)

// NewSimulatedRuntime creates a runtime whose loads take delay.
func NewSimulatedRuntime(delay time.Duration) *SimulatedRuntime {
	return &SimulatedRuntime{
		delay:  delay,
		now:    time.Now,
		loaded: make(map[string]simulatedContext),
	}
}

// Load implements Runtime.
func (r *SimulatedRuntime) Load(ctx context.Context, sessionID, category, assetPath string, config map[string]interface{}) error {
	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	fps := DefaultTargetFPS
	if v, ok := config["fps"].(float64); ok && v > 0 {
		fps = v
	}

	r.mu.Lock()
	r.loaded[sessionID] = simulatedContext{
		category:  category,
		assetPath: assetPath,
		fps:       fps,
		startedAt: r.now(),
	}
	r.mu.Unlock()
	return nil
}

// Stats implements Runtime.
func (r *SimulatedRuntime) Stats(sessionID string) (RuntimeStats, bool) {
	r.mu.RLock()
	c, ok := r.loaded[sessionID]
	r.mu.RUnlock()
	if !ok {
		return RuntimeStats{}, false
	}

	uptime := r.now().Sub(c.startedAt)
	return RuntimeStats{
		Category:       c.category,
		AssetPath:      c.assetPath,
		FPS:            c.fps,
		FrameTimeMs:    1000 / c.fps,
		FramesRendered: uint64(uptime.Seconds() * c.fps),
		Uptime:         uptime,
	}, true
}

// Unload implements Runtime.
func (r *SimulatedRuntime) Unload(sessionID string) {
	r.mu.Lock()
	delete(r.loaded, sessionID)
	r.mu.Unlock()
}

// Loaded returns the number of live contexts.
func (r *SimulatedRuntime) Loaded() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loaded)
}
