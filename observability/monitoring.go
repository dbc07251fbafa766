package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MonitoringStats is the snapshot exposed on the monitoring endpoint.
type MonitoringStats struct {
	// --- PRESENCE ---
	PresentUsers   int   `json:"present_users"`
	ActiveSessions int64 `json:"active_sessions"`

	// --- ROUTING ---
	MessagesRouted      uint64  `json:"messages_routed"`
	RoutedPerSecond     float64 `json:"routed_per_second"`
	RejectedSends       uint64  `json:"rejected_sends"`
	PersistenceFailures uint64  `json:"persistence_failures"`
	PushesDelivered     uint64  `json:"pushes_delivered"`
	DeliveryFailures    uint64  `json:"delivery_failures"`

	// --- SYSTEM ---
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSMb      uint64  `json:"rss_mb"`
	UpdatedAt  string  `json:"updated_at"`
}

// MonitoringManager aggregates relay counters into periodic snapshots.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats

	activeSessions      atomic.Int64
	messagesRouted      atomic.Uint64
	rejectedSends       atomic.Uint64
	persistenceFailures atomic.Uint64
	pushesDelivered     atomic.Uint64
	deliveryFailures    atomic.Uint64

	lastCheck  time.Time
	lastRouted uint64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log, lastCheck: time.Now()}
}

func (mm *MonitoringManager) SessionOpened()      { mm.activeSessions.Add(1) }
func (mm *MonitoringManager) SessionClosed()      { mm.activeSessions.Add(-1) }
func (mm *MonitoringManager) IncrRouted()         { mm.messagesRouted.Add(1) }
func (mm *MonitoringManager) IncrRejected()       { mm.rejectedSends.Add(1) }
func (mm *MonitoringManager) IncrPersistFailure() { mm.persistenceFailures.Add(1) }

// AddPushes records the outcome of one fan-out.
func (mm *MonitoringManager) AddPushes(delivered, failed int) {
	mm.pushesDelivered.Add(uint64(delivered))
	mm.deliveryFailures.Add(uint64(failed))
}

// UpdateProcess stores the values sampled by the heartbeat.
func (mm *MonitoringManager) UpdateProcess(cpuPercent float64, rssBytes uint64, presentUsers int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.CPUPercent = cpuPercent
	mm.latestStats.RSSMb = rssBytes / 1024 / 1024
	mm.latestStats.PresentUsers = presentUsers
}

// Listen refreshes the snapshot every interval until ctx is done.
func (mm *MonitoringManager) Listen(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Info("Monitoring manager stopped")
			return
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	routed := mm.messagesRouted.Load()
	if duration := now.Sub(mm.lastCheck).Seconds(); duration > 0 {
		mm.latestStats.RoutedPerSecond = float64(routed-mm.lastRouted) / duration
	}
	mm.lastCheck = now
	mm.lastRouted = routed

	mm.latestStats.MessagesRouted = routed
	mm.latestStats.ActiveSessions = mm.activeSessions.Load()
	mm.latestStats.RejectedSends = mm.rejectedSends.Load()
	mm.latestStats.PersistenceFailures = mm.persistenceFailures.Load()
	mm.latestStats.PushesDelivered = mm.pushesDelivered.Load()
	mm.latestStats.DeliveryFailures = mm.deliveryFailures.Load()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.Goroutines = runtime.NumGoroutine()
	mm.latestStats.UpdatedAt = now.UTC().Format(time.RFC3339)

	mm.log.Debug("Stats updated",
		"routed", routed,
		"routed_per_second", mm.latestStats.RoutedPerSecond,
		"sessions", mm.latestStats.ActiveSessions,
		"delivery_failures", mm.latestStats.DeliveryFailures,
	)
}

// GetLatest returns the last snapshot.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}

// Refresh forces a snapshot outside of the ticker.
func (mm *MonitoringManager) Refresh() MonitoringStats {
	mm.updateStats()
	return mm.GetLatest()
}
