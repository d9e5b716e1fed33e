// Package main provides the entry point for the outbox relay worker, which
// publishes loan events from the outbox table to Kafka.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/library-lending-service/internal/config"
	"github.com/helixir/library-lending-service/internal/database"
	"github.com/helixir/library-lending-service/internal/observability"
	"github.com/helixir/library-lending-service/internal/outbox"
	"github.com/helixir/library-lending-service/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("library-lending-service worker starting")

	if !cfg.Kafka.Enabled {
		return errors.New("kafka is disabled; set kafka.enabled to run the outbox relay")
	}

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("library_lending")
	}

	writer := outbox.NewKafkaWriter(cfg.Kafka)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close kafka writer")
		}
	}()
	logger.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Msg("kafka writer configured")

	relay := outbox.NewRelay(
		repository.NewPgOutboxRepository(db),
		writer,
		outbox.RelayConfigFrom(cfg.Outbox),
		metrics,
		logger,
	)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	err = relay.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("metrics server shutdown error")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("outbox relay: %w", err)
	}
	logger.Info().Msg("library-lending-service worker shutdown complete")
	return nil
}
