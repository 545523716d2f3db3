package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/riverwatch/hydro-data-service/internal/domain"
)

// StartRun opens an ingest_run audit row and returns its id.
func (s *Store) StartRun(ctx context.Context, kind domain.RunKind) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO ingest_run (kind, status)
VALUES ($1, $2)
RETURNING id`, kind, domain.RunOK).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start %s run: %w", kind, err)
	}
	return id, nil
}

// FinishRun finalizes an audit row exactly once with its outcome and a
// details document (counts, error lists, or the fatal error message).
func (s *Store) FinishRun(ctx context.Context, runID int64, status domain.RunStatus, details any) error {
	doc, err := json.Marshal(details)
	if err != nil {
		doc = []byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}

	_, err = s.pool.Exec(ctx, `
UPDATE ingest_run
SET finished_at = NOW(), status = $2, details = $3
WHERE id = $1`, runID, status, doc)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	return nil
}

// LastSuccessfulRunStart returns when the newest ok run of the given kind
// started, or nil if none exists. This is the only read-back the ingestion
// logic performs on the audit log.
func (s *Store) LastSuccessfulRunStart(ctx context.Context, kind domain.RunKind) (*time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, `
SELECT started_at
FROM ingest_run
WHERE kind = $1 AND status = $2 AND finished_at IS NOT NULL
ORDER BY started_at DESC
LIMIT 1`, kind, domain.RunOK).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last successful %s run: %w", kind, err)
	}
	return &ts, nil
}

// ListRuns returns the newest audit rows for the read API.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, kind, status, started_at, finished_at, details
FROM ingest_run
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.IngestRun, 0, limit)
	for rows.Next() {
		var r domain.IngestRun
		if err := rows.Scan(&r.ID, &r.Kind, &r.Status, &r.StartedAt, &r.FinishedAt, &r.Details); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
