package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gamebyte/switchboard/api/handlers"
	"github.com/gamebyte/switchboard/assets"
	"github.com/gamebyte/switchboard/config"
	"github.com/gamebyte/switchboard/coordinator"
	"github.com/gamebyte/switchboard/internal/metrics"
	"github.com/gamebyte/switchboard/internal/server"
	"github.com/gamebyte/switchboard/internal/telemetry"
	"github.com/gamebyte/switchboard/runctl"
	"github.com/gamebyte/switchboard/store"
	"github.com/gamebyte/switchboard/stream"
	"github.com/gamebyte/switchboard/types"
)

// Server assembles and runs the switchboard service: message store, run
// engine client, stream transport, coordinator registry, HTTP API, and a
// separate metrics listener.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	conversationStore store.ConversationStore
	janitor           *store.Janitor
	runs              runctl.Controller
	coordinators      *coordinator.Manager

	healthHandler       *handlers.HealthHandler
	conversationHandler *handlers.ConversationHandler
	assetHandler        *handlers.AssetHandler

	collector *metrics.Collector
	otel      *telemetry.Providers

	rateLimiterCancel context.CancelFunc
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
	}
}

// Start brings up every component and both listeners.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("switchboard", s.logger)

	if err := s.initComponents(); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}
	s.initHandlers()

	// The listeners are independent; start them concurrently and fail fast
	// if either cannot bind.
	var g errgroup.Group
	g.Go(s.startHTTPServer)
	g.Go(s.startMetricsServer)
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store", s.cfg.Store.Type),
		zap.String("stream_transport", s.cfg.Stream.Transport),
	)
	return nil
}

// initComponents wires the store, engine client, stream transport, and the
// coordinator registry.
func (s *Server) initComponents() error {
	st, err := store.New(s.cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to create message store: %w", err)
	}
	s.conversationStore = store.Instrument(st, store.Type(s.cfg.Store.Type), s.collector)

	if s.cfg.Store.CleanupEnabled {
		s.janitor = store.NewJanitor(s.conversationStore, s.cfg.StoreConfig().Cleanup, s.logger)
		s.janitor.Start()
	}

	s.runs = runctl.NewHTTPController(s.cfg.EngineConfig(), s.logger)

	streams, err := stream.New(s.cfg.StreamConfig(), s.logger)
	if err != nil {
		return fmt.Errorf("failed to create stream subscriber: %w", err)
	}

	coordConfig := coordinator.Config{
		StopTimeout:     s.cfg.Handoff.StopTimeout,
		DefaultSettings: s.cfg.DefaultSettings(),
	}
	s.coordinators = coordinator.NewManager(s.conversationStore, s.runs, streams, coordConfig, s.logger).
		WithCollector(s.collector).
		WithTokenizer(types.NewTiktokenCounter(s.cfg.Handoff.DefaultModel))

	return nil
}

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("store", s.conversationStore.Ping))

	s.conversationHandler = handlers.NewConversationHandler(s.coordinators, s.conversationStore, s.logger)

	generator := assets.NewGenerator(s.cfg.AssetsConfig(), s.logger)
	s.assetHandler = handlers.NewAssetHandler(generator, s.logger)
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /v1/conversations/{id}/handoff", s.conversationHandler.HandleHandoff)
	mux.HandleFunc("POST /v1/conversations/{id}/stop", s.conversationHandler.HandleStop)
	mux.HandleFunc("PATCH /v1/conversations/{id}/settings", s.conversationHandler.HandleSettings)
	mux.HandleFunc("GET /v1/conversations/{id}/settings", s.conversationHandler.HandleGetSettings)
	mux.HandleFunc("GET /v1/conversations/{id}/events", s.conversationHandler.HandleEvents)
	mux.HandleFunc("GET /v1/conversations/{id}", s.conversationHandler.HandleState)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", s.conversationHandler.HandleMessages)
	mux.HandleFunc("DELETE /v1/conversations/{id}", s.conversationHandler.HandleDelete)

	mux.HandleFunc("POST /v1/assets/generate", s.assetHandler.HandleGenerate)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		OTelTracing(),
		Metrics(s.collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.RateLimit.Enabled {
		rateLimiterCtx, cancel := context.WithCancel(context.Background())
		s.rateLimiterCancel = cancel
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst, s.logger))
	}
	if len(s.cfg.Auth.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Auth.APIKeys, skipAuthPaths, s.logger))
	} else if s.cfg.Auth.JWTSecret != "" {
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth.JWTSecret, skipAuthPaths, s.logger))
	}

	handler := Chain(mux, middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		EnableH2C:       s.cfg.Server.EnableH2C,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a signal or serve error, then cleans up.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops listeners and background workers and flushes telemetry.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.janitor != nil {
		s.janitor.Stop()
	}
	if s.conversationStore != nil {
		if err := s.conversationStore.Close(); err != nil {
			s.logger.Error("store close error", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
