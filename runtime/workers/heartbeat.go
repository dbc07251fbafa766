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

// HeartbeatWorker samples the relay process and the presence count into the monitoring snapshot.
type HeartbeatWorker struct {
	log        *slog.Logger
	registry   contract.IPresenceRegistry
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, registry contract.IPresenceRegistry,
	monitoring *observability.MonitoringManager, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, registry: registry, monitoring: monitoring, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rss, cpu, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			w.monitoring.UpdateProcess(cpu, rss, w.registry.Count())
		}
	}
}

func getSelfStats(p *process.Process) (uint64, float64, error) {
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

// MonitoringWorker refreshes the counters snapshot on a fixed interval.
type MonitoringWorker struct {
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewMonitoringWorker(monitoring *observability.MonitoringManager, interval time.Duration) *MonitoringWorker {
	return &MonitoringWorker{monitoring: monitoring, interval: interval}
}

func (w *MonitoringWorker) Run(ctx context.Context) error {
	w.monitoring.Listen(ctx, w.interval)
	return nil
}
