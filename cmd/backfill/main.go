// Command backfill ingests historical daily files. By default it runs one
// bounded batch and exits; with -listen it additionally consumes chain
// events so a batch that leaves files pending triggers the next one
// without waiting for the scheduler.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/riverwatch/hydro-data-service/internal/adapter/chain"
	"github.com/riverwatch/hydro-data-service/internal/adapter/chmi"
	"github.com/riverwatch/hydro-data-service/internal/config"
	"github.com/riverwatch/hydro-data-service/internal/ingest"
	"github.com/riverwatch/hydro-data-service/internal/observability"
	"github.com/riverwatch/hydro-data-service/internal/storage"
)

func main() {
	listen := flag.Bool("listen", false, "keep running and consume backfill chain events")
	flag.Parse()

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
	}

	svc := ingest.New(store, fetcher, notifier, cfg, logger, metrics)

	result, err := svc.IngestHistoricalBatch(ctx)
	if err != nil {
		logger.Error("backfill batch failed", "error", err)
		os.Exit(1)
	}
	if result.AllDone {
		logger.Info("nothing to backfill", "total_files", result.TotalFiles)
	}

	if !*listen {
		return
	}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("-listen requires KAFKA_BROKERS")
		os.Exit(1)
	}

	listener := chain.NewListener(cfg, logger)
	defer func() {
		if err := listener.Close(); err != nil {
			logger.Error("chain listener close error", "error", err)
		}
	}()

	logger.Info("listening for backfill chain events", "topic", cfg.KafkaChainTopic)
	err = listener.Listen(ctx, func(ctx context.Context, event chain.Event) error {
		logger.Info("chain event received", "remaining", event.Remaining)
		_, err := svc.IngestHistoricalBatch(ctx)
		return err
	})
	if err != nil {
		logger.Error("chain listener error", "error", err)
		os.Exit(1)
	}
}
