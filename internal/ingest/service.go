// Package ingest orchestrates the CHMI ingestion pipeline: station
// discovery, metadata refresh, near-real-time measurement ingest, historical
// backfill, and the on-demand freshness gate invoked from the read path.
//
// Every schedulable operation records an ingest_run audit row. Per-station
// and per-file failures are soft: they are collected into the run details
// and never abort sibling work. Only unexpected failures (store unreachable,
// index fetch failed) propagate, after finalizing the run as error, so the
// scheduler's alerting can see them.
package ingest

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/riverwatch/hydro-data-service/internal/config"
	"github.com/riverwatch/hydro-data-service/internal/domain"
	"github.com/riverwatch/hydro-data-service/internal/observability"
)

// Fetcher retrieves upstream documents. *chmi.Client implements it.
type Fetcher interface {
	FetchIndex(ctx context.Context, indexURL string) ([]string, error)
	FetchMetadata(ctx context.Context, url string) ([]domain.MetaRow, error)
	FetchStationPoints(ctx context.Context, baseURL, fileName string) ([]domain.MeasurementPoint, error)
}

// Store is the persistence surface the pipeline depends on. *storage.Store
// implements it.
type Store interface {
	// Station directory.
	CountStations(ctx context.Context) (int, error)
	InsertPlaceholderStations(ctx context.Context, externalIDs []string) (int, error)
	UpsertRiver(ctx context.Context, name string) (int64, error)
	UpsertStation(ctx context.Context, meta domain.StationMeta, riverID *int64) error
	ListActiveExternalIDs(ctx context.Context) ([]string, error)
	StationIDsByExternal(ctx context.Context, externalIDs []string) (map[string]int64, error)
	StationExternalID(ctx context.Context, stationID int64) (string, error)
	TouchStation(ctx context.Context, stationID int64) error

	// Measurements.
	UpsertMeasurements(ctx context.Context, rows []domain.MeasurementRow, source string) (int, error)
	LatestMeasurementTS(ctx context.Context, stationID int64) (*time.Time, error)
	HistoricalCoverage(ctx context.Context) (map[string]struct{}, error)

	// Run audit.
	StartRun(ctx context.Context, kind domain.RunKind) (int64, error)
	FinishRun(ctx context.Context, runID int64, status domain.RunStatus, details any) error
	LastSuccessfulRunStart(ctx context.Context, kind domain.RunKind) (*time.Time, error)

	// Advisory locking for the freshness gate.
	TryStationLock(ctx context.Context, stationID int64) (release func(), acquired bool, err error)
}

// ChainNotifier schedules the next historical backfill batch. Nil disables
// chaining; the cron safety net calls the same entry point regardless.
type ChainNotifier interface {
	NotifyBackfillPending(ctx context.Context, remaining int) error
}

// Failure is one soft per-item error: data in the run details, not a fault.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Service wires the pipeline stages together.
type Service struct {
	store   Store
	fetcher Fetcher
	chain   ChainNotifier
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Service. chain may be nil.
func New(store Store, fetcher Fetcher, chain ChainNotifier, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		fetcher: fetcher,
		chain:   chain,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// finishRun finalizes an audit row with either the operation's summary or
// the fatal error message, and records run metrics. Finalization failures
// are logged, not propagated: they must not mask the operation's outcome.
func (s *Service) finishRun(ctx context.Context, runID int64, kind domain.RunKind, started time.Time, details any, opErr error) {
	status := domain.RunOK
	if opErr != nil {
		status = domain.RunError
		details = map[string]string{"error": opErr.Error()}
	}

	if err := s.store.FinishRun(ctx, runID, status, details); err != nil {
		s.logger.Error("finalize ingest run failed", "run_id", runID, "kind", kind, "error", err)
	}

	s.metrics.RunsFinished.WithLabelValues(string(kind), string(status)).Inc()
	s.metrics.RunDuration.WithLabelValues(string(kind)).Observe(domain.Clock().Since(started).Seconds())
}

// sortFailures orders soft errors by item id so run details are stable
// regardless of worker completion order.
func sortFailures(failures []Failure) {
	sort.Slice(failures, func(i, j int) bool { return failures[i].ID < failures[j].ID })
}
