// Package main is the entry point for the AidFlow API server.
//
// It loads configuration, connects the Postgres pool, assembles the
// repositories and services (forecast engine, dashboard stats, chat
// assistant, exports), builds the HTTP server with the core chassis
// (middleware, routing, health checks), and listens until a shutdown
// signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"

	"aidflow/internal/api/handlers"
	"aidflow/internal/chat"
	"aidflow/internal/config"
	"aidflow/internal/core"
	"aidflow/internal/db"
	"aidflow/internal/export"
	"aidflow/internal/external"
	"aidflow/internal/forecast"
	"aidflow/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit
// on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("aidflow API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	seriesRepo := db.NewSeriesRepository(pool)
	statsRepo := db.NewStatsRepository(pool)
	recordRepo := db.NewRecordRepository(pool)

	clock := types.RealClock{}

	forecastSvc := forecast.NewService(seriesRepo, logger, clock, cfg.Forecast)
	exportSvc := export.NewService(cfg.Export, recordRepo, clock, logger)

	sessionStore := chat.NewMemorySessionStore(cfg.Chat.SessionTTL, cfg.Chat.MaxSessions)
	contextBuilder := chat.NewContextBuilder(statsRepo, forecastSvc, logger)
	llmClient := external.NewLLMClient(cfg.Chat, logger)
	chatSvc := chat.NewService(cfg.Chat, sessionStore, contextBuilder, llmClient, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics, err = newMetrics(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, &db.PoolProbe{Pool: pool})

	forecastHandler := handlers.NewForecastHandler(forecastSvc, srv.Validator, logger)
	dashboardHandler := handlers.NewDashboardHandler(statsRepo, logger)
	chatHandler := handlers.NewChatHandler(chatSvc, srv.Validator, logger)
	exportHandler := handlers.NewExportHandler(exportSvc, seriesRepo, forecastSvc, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { r.Route("/forecasting", forecastHandler.RegisterRoutes) },
		dashboardHandler.RegisterRoutes,
		func(r chi.Router) { r.Route("/chat", chatHandler.RegisterRoutes) },
		func(r chi.Router) { r.Route("/export", exportHandler.RegisterRoutes) },
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newMetrics returns the CloudWatch collector when metrics are enabled,
// otherwise a no-op.
func newMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.MetricsCollector, error) {
	if !cfg.Observability.EnableMetrics {
		return external.NoopMetrics{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Observability.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := cloudwatch.NewFromConfig(awsCfg)
	return external.NewCloudWatchMetrics(client, cfg.Observability.MetricNamespace, logger), nil
}

// runHTTPServer starts the server with graceful shutdown on SIGINT/SIGTERM.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
