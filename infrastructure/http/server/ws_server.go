package server

import (
	"chat-relay/auth"
	"context"
	"chat-relay/contract"
	"chat-relay/infrastructure/ws"
	"chat-relay/observability"
	"chat-relay/runtime"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// WsServer upgrades authenticated requests into sessions.
type WsServer struct {
	log          *slog.Logger
	upgrader     websocket.Upgrader
	registry     contract.IPresenceRegistry
	router       contract.IRouter
	monitoring   *observability.MonitoringManager
	bufferSize   int
	writeTimeout time.Duration
	// sessions counts hijacked connections, which http.Server.Shutdown does not track
	sessions sync.WaitGroup
}

func NewWsServer(log *slog.Logger, registry contract.IPresenceRegistry, router contract.IRouter,
	monitoring *observability.MonitoringManager, allowedOrigins []string,
	bufferSize int, writeTimeout time.Duration) *WsServer {
	return &WsServer{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		registry:     registry,
		router:       router,
		monitoring:   monitoring,
		bufferSize:   bufferSize,
		writeTimeout: writeTimeout,
	}
}

// Connect blocks for the lifetime of the session.
// Requests without identity still get a connection, it just never becomes routable.
func (s *WsServer) Connect(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied
		s.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.sessions.Add(1)
	defer s.sessions.Done()

	session := runtime.NewSession(userID, ws.NewTransport(conn), s.registry, s.router,
		s.monitoring, s.log, s.bufferSize, s.writeTimeout)
	if err := session.Run(r.Context()); err != nil &&
		websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		s.log.Warn("Session ended abnormally", "session", session.ID(), "user", userID, "error", err)
	}
}

// Wait blocks until every running session has returned, including its in-flight send.
// Call it after http.Server.Shutdown so no new session can start.
func (s *WsServer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func checkOrigin(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || lo.Contains(allowedOrigins, "*") {
			return true
		}
		return lo.Contains(allowedOrigins, origin)
	}
}
