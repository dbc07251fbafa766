package server

import (
	"chat-relay/contract"
	"chat-relay/infrastructure/storage"
	"chat-relay/internal"
	"chat-relay/observability"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

const defaultInspectLimit = 100

type MonitoringServer struct {
	log        *slog.Logger
	monitoring *observability.MonitoringManager
	registry   contract.IPresenceRegistry
	db         *badger.DB
}

func NewMonitoringServer(log *slog.Logger, monitoring *observability.MonitoringManager,
	registry contract.IPresenceRegistry, db *badger.DB) *MonitoringServer {
	return &MonitoringServer{log: log, monitoring: monitoring, registry: registry, db: db}
}

// Stats returns the last snapshot with a live presence count.
func (s *MonitoringServer) Stats(w http.ResponseWriter, _ *http.Request) {
	stats := s.monitoring.GetLatest()
	stats.PresentUsers = s.registry.Count()
	writeJSON(w, http.StatusOK, stats)
}

// Inspect dumps raw store entries: /debug/inspect?prefix=msg:dm:&limit=50
func (s *MonitoringServer) Inspect(w http.ResponseWriter, r *http.Request) {
	limit := defaultInspectLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	rows, err := internal.Scan(s.db, r.URL.Query().Get("prefix"), limit, storage.RecordMapper)
	if err != nil {
		s.log.Error("Inspection failed", "error", err)
		writeJSONError(w, err)
		return
	}
	if rows == nil {
		rows = []internal.InspectRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *MonitoringServer) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
