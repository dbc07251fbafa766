// Package server wires the HTTP surface of the relay: the websocket endpoint,
// history and channel APIs, monitoring.
package server

import (
	"chat-relay/auth"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Dependencies struct {
	Log            *slog.Logger
	Authenticator  *auth.Authenticator
	AllowedOrigins []string
	Chat           *ChatServer
	Ws             *WsServer
	Monitoring     *MonitoringServer
	// Inspect exposes /debug/inspect when set
	Inspect bool
}

func NewHandler(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", deps.Monitoring.Health)
	r.With(deps.Authenticator.Optional).Get("/ws", deps.Ws.Connect)

	r.Route("/api", func(r chi.Router) {
		r.Get("/monitoring/stats", deps.Monitoring.Stats)

		r.Group(func(r chi.Router) {
			r.Use(deps.Authenticator.Required)
			r.Get("/messages/direct/{peerID}", deps.Chat.DirectHistory)
			r.Get("/messages/search", deps.Chat.Search)
			r.Get("/channel/{channelID}/messages", deps.Chat.ChannelHistory)
			r.Post("/channel/create-group", deps.Chat.CreateChannel)
			r.Get("/channel/user-channels", deps.Chat.UserChannels)
			r.Get("/contacts/dm", deps.Chat.Contacts)
		})
	})

	if deps.Inspect {
		r.Get("/debug/inspect", deps.Monitoring.Inspect)
	}
	return r
}

// requestLogger replaces middleware.Logger so access logs go through slog.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
