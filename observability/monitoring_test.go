package observability

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitoringManager_Refresh_AggregatesCounters(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())

	mm.SessionOpened()
	mm.SessionOpened()
	mm.SessionClosed()
	mm.IncrRouted()
	mm.IncrRouted()
	mm.IncrRejected()
	mm.IncrPersistFailure()
	mm.AddPushes(3, 1)
	mm.UpdateProcess(12.5, 64*1024*1024, 7)

	stats := mm.Refresh()

	req.Equal(int64(1), stats.ActiveSessions)
	req.Equal(uint64(2), stats.MessagesRouted)
	req.Equal(uint64(1), stats.RejectedSends)
	req.Equal(uint64(1), stats.PersistenceFailures)
	req.Equal(uint64(3), stats.PushesDelivered)
	req.Equal(uint64(1), stats.DeliveryFailures)
	req.Equal(uint64(64), stats.RSSMb)
	req.Equal(7, stats.PresentUsers)
	req.Positive(stats.Goroutines)
	req.NotEmpty(stats.UpdatedAt)
}

func TestMonitoringManager_Listen_StopsWithContext(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		mm.Listen(ctx, 10*time.Millisecond)
		close(done)
	}()
	mm.IncrRouted()

	req.Eventually(func() bool {
		return mm.GetLatest().MessagesRouted == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	req.Eventually(func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
