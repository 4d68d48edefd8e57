package telemetry

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

var meter = otel.Meter("digiscrape/perf_stats")
var cpuGauge, _ = meter.Float64Gauge("cpu_usage")
var memoryGauge, _ = meter.Int64Gauge("allocated_mb")
var goroutineGauge, _ = meter.Int64Gauge("goroutine_count")

// PerfStats is one sample of process resource usage.
type PerfStats struct {
	// CpuPercent is negative when the system cpu usage could not be read.
	CpuPercent  float64
	AllocatedMb int64
	Goroutines  int64
}

// SamplePerfStats measures cpu usage over window and reads the current memory statistics.
func SamplePerfStats(ctx context.Context, window time.Duration) PerfStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := PerfStats{
		CpuPercent:  -1,
		AllocatedMb: int64(memStats.Alloc / 1_000_000),
		Goroutines:  int64(runtime.NumGoroutine()),
	}
	usage, err := cpu.PercentWithContext(ctx, window, false)
	if err == nil && len(usage) > 0 {
		stats.CpuPercent = usage[0]
	}
	return stats
}

// InstrumentPerfStats records a PerfStats sample to the global meter every interval until ctx is done.
func InstrumentPerfStats(ctx context.Context, interval time.Duration, tel API) {
	tel = OrDiscard(tel)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := SamplePerfStats(ctx, time.Second)
				if stats.CpuPercent >= 0 {
					cpuGauge.Record(ctx, stats.CpuPercent)
				} else {
					tel.ReportWarning("perf-stats.cpu", "failed to read cpu usage")
				}
				memoryGauge.Record(ctx, stats.AllocatedMb)
				goroutineGauge.Record(ctx, stats.Goroutines)
			case <-ctx.Done():
				return
			}
		}
	}()
}
