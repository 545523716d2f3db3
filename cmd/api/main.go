package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/riverwatch/hydro-data-service/internal/adapter/chain"
	"github.com/riverwatch/hydro-data-service/internal/adapter/chmi"
	"github.com/riverwatch/hydro-data-service/internal/api"
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

	var notifier ingest.ChainNotifier
	if len(cfg.KafkaBrokers) > 0 {
		n := chain.NewNotifier(cfg, logger)
		defer func() {
			if err := n.Close(); err != nil {
				logger.Error("chain notifier close error", "error", err)
			}
		}()
		notifier = n
		logger.Info("backfill chaining enabled", "topic", cfg.KafkaChainTopic)
	} else {
		logger.Info("backfill chaining disabled")
	}

	svc := ingest.New(store, fetcher, notifier, cfg, logger, metrics)
	srv := api.New(cfg, store, svc, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
