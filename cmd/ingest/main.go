// Command ingest performs one near-real-time ingest cycle: discover and
// refresh the station directory when due, then pull the current feed for
// every active station. Intended to run on a short schedule (cron or a
// scheduler sidecar).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/riverwatch/hydro-data-service/internal/adapter/chmi"
	"github.com/riverwatch/hydro-data-service/internal/config"
	"github.com/riverwatch/hydro-data-service/internal/ingest"
	"github.com/riverwatch/hydro-data-service/internal/observability"
	"github.com/riverwatch/hydro-data-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	limiter := chmi.NewLimiter(cfg.FetchRate, cfg.FetchConcurrency)
	fetcher := chmi.NewClient(cfg.FetchTimeout, limiter, logger)

	svc := ingest.New(store, fetcher, nil, cfg, logger, metrics)

	discover, err := svc.RunDiscoverIfNeeded(ctx)
	if err != nil {
		logger.Error("discovery failed", "error", err)
		os.Exit(1)
	}
	if !discover.Skipped {
		logger.Info("discovery finished",
			"discovered", discover.DiscoveredStations,
			"stations_upserted", discover.StationsUpserted,
		)
	}

	result, err := svc.IngestNow(ctx)
	if err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ingest finished",
		"files", result.Files,
		"rows_upserted", result.RowsUpserted,
		"failed", result.FailedCount,
	)
}
