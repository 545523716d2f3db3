package ingest

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/riverwatch/hydro-data-service/internal/domain"
)

// NowResult summarizes one near-real-time ingest run.
type NowResult struct {
	Files        int       `json:"files"`
	RowsToUpsert int       `json:"rows_to_upsert"`
	RowsUpserted int       `json:"rows_upserted"`
	FailedCount  int       `json:"failed_count"`
	Failures     []Failure `json:"failures,omitempty"`
}

// IngestNow fetches the current feed for every active station with bounded
// concurrency, merges the sub-series, and upserts all collected rows in one
// batch. A single station's failure is a soft error; the run still
// finalizes ok with the failures enumerated in its details.
func (s *Service) IngestNow(ctx context.Context) (NowResult, error) {
	runID, err := s.store.StartRun(ctx, domain.RunIngest)
	if err != nil {
		return NowResult{}, err
	}
	started := domain.Clock().Now()

	s.metrics.IngestRunning.Set(1)
	defer s.metrics.IngestRunning.Set(0)

	result, err := s.ingestNow(ctx)
	s.finishRun(ctx, runID, domain.RunIngest, started, result, err)
	if err != nil {
		return NowResult{}, err
	}
	return result, nil
}

func (s *Service) ingestNow(ctx context.Context) (NowResult, error) {
	externalIDs, err := s.store.ListActiveExternalIDs(ctx)
	if err != nil {
		return NowResult{}, err
	}
	if only := s.cfg.OnlyStationsSet(); only != nil {
		filtered := externalIDs[:0]
		for _, id := range externalIDs {
			if _, ok := only[id]; ok {
				filtered = append(filtered, id)
			}
		}
		externalIDs = filtered
	}
	s.logger.Info("stations loaded", "count", len(externalIDs))

	idByExt, err := s.store.StationIDsByExternal(ctx, externalIDs)
	if err != nil {
		return NowResult{}, err
	}

	rows, failures := s.fetchStations(ctx, externalIDs, idByExt)

	result := NowResult{
		Files:        len(externalIDs),
		RowsToUpsert: len(rows),
		FailedCount:  len(failures),
		Failures:     failures,
	}

	if s.cfg.DryRun {
		s.logger.Info("dry-run: skipping measurement upsert", "candidates", len(rows))
		return result, nil
	}

	upserted, err := s.store.UpsertMeasurements(ctx, rows, domain.SourceNow)
	if err != nil {
		return NowResult{}, err
	}
	result.RowsUpserted = upserted
	s.metrics.RowsUpserted.WithLabelValues(domain.SourceNow).Add(float64(upserted))

	s.logger.Info("ingest done",
		"files", result.Files,
		"rows_to_upsert", result.RowsToUpsert,
		"rows_upserted", result.RowsUpserted,
		"failed", result.FailedCount,
	)
	return result, nil
}

// fetchStations pulls the current feed of each station through a fixed-size
// worker pool. Failures come back as soft errors alongside the successful
// rows; the pool never cancels siblings on an individual failure.
func (s *Service) fetchStations(ctx context.Context, externalIDs []string, idByExt map[string]int64) ([]domain.MeasurementRow, []Failure) {
	var (
		mu       sync.Mutex
		rows     []domain.MeasurementRow
		failures []Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)

	for _, extID := range externalIDs {
		g.Go(func() error {
			stationID, ok := idByExt[extID]
			if !ok {
				mu.Lock()
				failures = append(failures, Failure{ID: extID, Reason: "no station row for external id"})
				mu.Unlock()
				return nil
			}

			points, err := s.fetcher.FetchStationPoints(gctx, s.cfg.NowIndexURL, extID+".json")
			if err != nil {
				s.metrics.StationFetches.WithLabelValues("now", "error").Inc()
				mu.Lock()
				failures = append(failures, Failure{ID: extID, Reason: err.Error()})
				mu.Unlock()
				return nil
			}
			s.metrics.StationFetches.WithLabelValues("now", "ok").Inc()

			mu.Lock()
			for _, p := range points {
				rows = append(rows, domain.MeasurementRow{StationID: stationID, Point: p})
			}
			mu.Unlock()
			return nil
		})
	}

	// Workers only return nil; Wait is for pool drainage, not errors.
	_ = g.Wait()

	sortFailures(failures)
	return rows, failures
}
