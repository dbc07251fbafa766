package main

import (
	"chat-relay/auth"
	grpcserver "chat-relay/infrastructure/grpc/server"
	httpserver "chat-relay/infrastructure/http/server"
	"chat-relay/infrastructure/storage"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Every defer (database, index) runs before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, _ := internal.CharacterRune(config.CharReplacement)

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	messageRepository, err := storage.NewMessageRepository(db, logger, config.LimitMessages)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = messageRepository.Close() }()
	channelRepository := storage.NewChannelRepository(db)
	searchIndex := storage.NewSearchIndex(blugeWriter, logger)

	// 3. Delivery core
	monitoring := observability.NewMonitoringManager(logger)
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(logger, registry, messageRepository, channelRepository,
		monitoring, config.MaxContentLength).
		Add(searchIndex)

	if config.ModerationEnabled {
		censored, err := moderation.LoadEmbedded()
		if err != nil {
			return exitRuntime, fmt.Errorf("censored words: %w", err)
		}
		moderator, err := moderation.NewModerator(censored.Words, charReplacement)
		if err != nil {
			return exitRuntime, fmt.Errorf("moderator: %w", err)
		}
		logger.Info("Moderation enabled", "languages", censored.Languages, "words", len(censored.Words))
		router.WithModerator(moderator)
	}

	// 4. Background workers
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewMonitoringWorker(monitoring, config.MetricInterval),
		workers.NewHeartbeatWorker(logger, registry, monitoring, config.MetricInterval),
	)
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 5. HTTP (websocket + API) and gRPC health
	chatService := services.NewChatService(logger, messageRepository, channelRepository, searchIndex, config.SearchLimit)
	wsServer := httpserver.NewWsServer(logger, registry, router, monitoring, config.Origins(),
		config.ConnectionBufferSize, config.WriteTimeout)
	handler := httpserver.NewHandler(httpserver.Dependencies{
		Log:            logger,
		Authenticator:  auth.NewAuthenticator(config.JWTSecret, config.AuthTokenDuration),
		AllowedOrigins: config.Origins(),
		Chat:           httpserver.NewChatServer(logger, chatService),
		Ws:             wsServer,
		Monitoring:     httpserver.NewMonitoringServer(logger, monitoring, registry, db),
		Inspect:        config.EnableInspect,
	})
	httpAddress := fmt.Sprintf("%s:%d", config.Host, config.HTTPPort)
	httpServer := &http.Server{
		Addr:              httpAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Sessions inherit this context and close on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	healthServer := grpcserver.NewHealthServer(logger)
	grpcServer := healthServer.NewGRPCServer()

	errChan := make(chan error, 2)
	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress, "at", time.Now().UTC())
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		logger.Info("Starting HTTP server", "address", httpAddress, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	healthServer.Serving()

	// 6. Wait for Stop or Error
	exitCode := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		exitCode = exitRuntime
		stop()
	}

	// 7. Graceful shutdown
	logger.Info("Shutting down gracefully...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	// Websocket sessions are hijacked: drain them before the stores close
	if err := wsServer.Wait(shutdownCtx); err != nil {
		logger.Warn("Websocket sessions still running", "error", err)
	}
	grpcServer.GracefulStop()
	sup.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return exitCode, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.INFO)
}
