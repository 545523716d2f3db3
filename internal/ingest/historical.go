package ingest

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/riverwatch/hydro-data-service/internal/adapter/chmi"
	"github.com/riverwatch/hydro-data-service/internal/domain"
)

// HistoricalResult summarizes one bounded backfill batch.
type HistoricalResult struct {
	AllDone      bool      `json:"all_done"`
	TotalFiles   int       `json:"total_files"`
	Pending      int       `json:"pending"`
	Fetched      int       `json:"fetched"`
	RowsUpserted int       `json:"rows_upserted"`
	Remaining    int       `json:"remaining"`
	FailedCount  int       `json:"failed_count"`
	Failures     []Failure `json:"failures,omitempty"`
}

// IngestHistoricalBatch processes at most one page of pending historical
// daily files. The pending set is recomputed from stored (station, year)
// coverage, never from the run log, so interrupted runs resume where the
// data actually stops. When files remain after the batch, the chain
// notifier (if any) is asked to schedule a successor; the cron safety net
// may always call this entry point again regardless.
func (s *Service) IngestHistoricalBatch(ctx context.Context) (HistoricalResult, error) {
	pending, total, err := s.pendingHistoricalFiles(ctx)
	if err != nil {
		return HistoricalResult{}, err
	}
	if len(pending) == 0 {
		s.metrics.BackfillRemaining.Set(0)
		s.logger.Info("backfill complete", "total_files", total)
		return HistoricalResult{AllDone: true, TotalFiles: total}, nil
	}

	batch := pending
	if len(batch) > s.cfg.HistoricalBatchSize {
		batch = batch[:s.cfg.HistoricalBatchSize]
	}
	remaining := len(pending) - len(batch)

	runID, err := s.store.StartRun(ctx, domain.RunHistorical)
	if err != nil {
		return HistoricalResult{}, err
	}
	started := domain.Clock().Now()

	s.metrics.IngestRunning.Set(1)
	defer s.metrics.IngestRunning.Set(0)

	result, err := s.ingestHistoricalFiles(ctx, batch)
	if err == nil {
		result.TotalFiles = total
		result.Pending = len(pending)
		result.Remaining = remaining
	}
	s.finishRun(ctx, runID, domain.RunHistorical, started, result, err)
	if err != nil {
		return HistoricalResult{}, err
	}

	s.metrics.BackfillRemaining.Set(float64(remaining))
	if remaining > 0 {
		s.notifyChain(ctx, remaining)
	}

	s.logger.Info("backfill batch done",
		"batch", len(batch),
		"remaining", remaining,
		"rows_upserted", result.RowsUpserted,
		"failed", result.FailedCount,
	)
	return result, nil
}

// pendingHistoricalFiles diffs the historical index against stored daily
// coverage.
func (s *Service) pendingHistoricalFiles(ctx context.Context) ([]domain.HistoricalFile, int, error) {
	index, err := s.fetcher.FetchIndex(ctx, s.cfg.HistoricalDailyURL)
	if err != nil {
		return nil, 0, fmt.Errorf("historical index: %w", err)
	}
	files := chmi.HistoricalFilesFromIndex(index)

	if only := s.cfg.OnlyStationsSet(); only != nil {
		filtered := files[:0]
		for _, f := range files {
			if _, ok := only[f.ExternalID]; ok {
				filtered = append(filtered, f)
			}
		}
		files = filtered
	}

	done, err := s.store.HistoricalCoverage(ctx)
	if err != nil {
		return nil, 0, err
	}

	pending := make([]domain.HistoricalFile, 0, len(files))
	for _, f := range files {
		if _, ok := done[f.Key()]; !ok {
			pending = append(pending, f)
		}
	}
	return pending, len(files), nil
}

func (s *Service) ingestHistoricalFiles(ctx context.Context, batch []domain.HistoricalFile) (HistoricalResult, error) {
	extIDs := make([]string, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, f := range batch {
		if _, ok := seen[f.ExternalID]; ok {
			continue
		}
		seen[f.ExternalID] = struct{}{}
		extIDs = append(extIDs, f.ExternalID)
	}

	idByExt, err := s.store.StationIDsByExternal(ctx, extIDs)
	if err != nil {
		return HistoricalResult{}, err
	}

	var (
		mu       sync.Mutex
		rows     []domain.MeasurementRow
		failures []Failure
		fetched  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)

	for _, file := range batch {
		g.Go(func() error {
			stationID, ok := idByExt[file.ExternalID]
			if !ok {
				mu.Lock()
				failures = append(failures, Failure{ID: file.Name, Reason: "no station row for external id"})
				mu.Unlock()
				return nil
			}

			points, err := s.fetcher.FetchStationPoints(gctx, s.cfg.HistoricalDailyURL, file.Name)
			if err != nil {
				s.metrics.StationFetches.WithLabelValues("historical", "error").Inc()
				mu.Lock()
				failures = append(failures, Failure{ID: file.Name, Reason: err.Error()})
				mu.Unlock()
				return nil
			}
			s.metrics.StationFetches.WithLabelValues("historical", "ok").Inc()

			mu.Lock()
			fetched++
			for _, p := range points {
				rows = append(rows, domain.MeasurementRow{StationID: stationID, Point: p})
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sortFailures(failures)
	result := HistoricalResult{
		Fetched:     fetched,
		FailedCount: len(failures),
		Failures:    failures,
	}

	if s.cfg.DryRun {
		s.logger.Info("dry-run: skipping historical upsert", "candidates", len(rows))
		return result, nil
	}

	upserted, err := s.store.UpsertMeasurements(ctx, rows, domain.SourceDaily)
	if err != nil {
		return HistoricalResult{}, err
	}
	result.RowsUpserted = upserted
	s.metrics.RowsUpserted.WithLabelValues(domain.SourceDaily).Add(float64(upserted))
	return result, nil
}

// notifyChain is best-effort: a lost chain event only delays the backfill
// until the next scheduled invocation.
func (s *Service) notifyChain(ctx context.Context, remaining int) {
	if s.chain == nil {
		return
	}
	if err := s.chain.NotifyBackfillPending(ctx, remaining); err != nil {
		s.logger.Warn("backfill chain notify failed", "remaining", remaining, "error", err)
	}
}
