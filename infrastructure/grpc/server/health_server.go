// Package server exposes the gRPC side of the relay, limited to the standard health service.
package server

import (
	"log/slog"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health key load balancers probe for the relay.
const ServiceName = "chat.relay.v1.Relay"

// HealthServer reports whether the relay accepts connections.
type HealthServer struct {
	log    *slog.Logger
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{log: log, health: h}
}

// NewGRPCServer builds the gRPC server with logging and registers the health service.
func (h *HealthServer) NewGRPCServer() *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(h.log)))
	healthpb.RegisterHealthServer(s, h.health)
	return s
}

func (h *HealthServer) Serving() {
	h.log.Info("Health status changed", "service", ServiceName, "status", "SERVING")
	h.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// Shutdown flips every service to NOT_SERVING for good.
func (h *HealthServer) Shutdown() {
	h.log.Info("Health status changed", "service", ServiceName, "status", "NOT_SERVING")
	h.health.Shutdown()
}
