package workers

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*TelemetryWorker)(nil)

type ConnectionCounter interface {
	Len() int
}

type RoomCounter interface {
	RoomCount() int
}

// TelemetryWorker periodically samples the relay (open connections, live rooms)
// and its own process (RSS, CPU) into the prometheus gauges.
// A failed process sample is logged and skipped, the next tick tries again.
type TelemetryWorker struct {
	log            *slog.Logger
	metrics        *observability.Metrics
	connections    ConnectionCounter
	rooms          RoomCounter
	metricInterval time.Duration
}

func NewTelemetryWorker(log *slog.Logger,
	metrics *observability.Metrics,
	connections ConnectionCounter,
	rooms RoomCounter,
	metricInterval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{
		log:            log,
		metrics:        metrics,
		connections:    connections,
		rooms:          rooms,
		metricInterval: metricInterval,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			w.Sample(p)
		}
	}
}

// Sample records one measurement. p may be nil to skip process statistics.
func (w *TelemetryWorker) Sample(p *process.Process) {
	connections := w.connections.Len()
	rooms := w.rooms.RoomCount()
	w.metrics.Connections.Set(float64(connections))
	w.metrics.Rooms.Set(float64(rooms))

	attrs := []any{"connections", connections, "rooms", rooms}
	if p != nil {
		rss, cpu, err := selfStats(p)
		if err != nil {
			w.log.Warn("Failed to collect self stats", "error", err)
		} else {
			w.metrics.ProcessRSS.Set(float64(rss))
			w.metrics.ProcessCPU.Set(cpu)
			attrs = append(attrs, "rss_bytes", rss, "cpu_percent", cpu)
		}
	}
	w.log.Debug("telemetry: relay sample", attrs...)
}

// selfStats retrieves resident memory and CPU usage for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
