// Package telemetry samples host and process metrics for performance reports.
package telemetry

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
)

const defaultCacheTTL = 2 * time.Second

// Metric names reported by the sampler
const (
	MetricHostCPUPercent    = "host_cpu_percent"
	MetricHostMemoryPercent = "host_memory_percent"
	MetricCPUCores          = "cpu_cores"
	MetricLoad1             = "load_1"
	MetricProcessCPUPercent = "process_cpu_percent"
	MetricProcessRSSBytes   = "process_rss_bytes"
	MetricProcessThreads    = "process_threads"
)

// Snapshot is one sample of host and process metrics.
type Snapshot struct {
	CollectedAt time.Time
	Metrics     map[string]float64
}

// Sampler collects metrics and caches them briefly, since several sessions
// may ask for performance data at once.
type Sampler struct {
	logger *logging.Logger
	proc   *process.Process
	ttl    time.Duration

	mu      sync.Mutex
	hasSnap bool
	snap    Snapshot
}

// NewSampler creates a sampler for the current process.
func NewSampler(logger *logging.Logger) (*Sampler, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Sampler{logger: logger, proc: proc, ttl: defaultCacheTTL}, nil
}

// Snapshot returns a cached sample younger than the cache TTL, or collects a new one.
func (s *Sampler) Snapshot(ctx context.Context) Snapshot {
	now := time.Now()

	s.mu.Lock()
	if s.hasSnap && now.Sub(s.snap.CollectedAt) < s.ttl {
		out := s.snap
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	snap := s.collect(ctx)

	s.mu.Lock()
	s.snap = snap
	s.hasSnap = true
	s.mu.Unlock()

	return snap
}

// Metrics returns a copy of the current metric values.
func (s *Sampler) Metrics(ctx context.Context) map[string]float64 {
	snap := s.Snapshot(ctx)
	out := make(map[string]float64, len(snap.Metrics))
	for k, v := range snap.Metrics {
		out[k] = v
	}
	return out
}

func (s *Sampler) collect(ctx context.Context) Snapshot {
	metrics := make(map[string]float64)

	// Interval 0 compares against the previous call instead of blocking.
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		metrics[MetricHostCPUPercent] = percents[0]
	} else if err != nil {
		s.logger.Warn("telemetry: cpu percent failed", logging.Fields{"error": err})
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		metrics[MetricCPUCores] = float64(cores)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		metrics[MetricLoad1] = avg.Load1
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		metrics[MetricHostMemoryPercent] = vm.UsedPercent
	}

	if pct, err := s.proc.PercentWithContext(ctx, 0); err == nil {
		metrics[MetricProcessCPUPercent] = pct
	}
	if info, err := s.proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
		metrics[MetricProcessRSSBytes] = float64(info.RSS)
	} else if err != nil {
		s.logger.Warn("telemetry: process memory failed", logging.Fields{"error": err})
	}
	if threads, err := s.proc.NumThreadsWithContext(ctx); err == nil {
		metrics[MetricProcessThreads] = float64(threads)
	}

	return Snapshot{CollectedAt: time.Now(), Metrics: metrics}
}
