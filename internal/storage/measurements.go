package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/riverwatch/hydro-data-service/internal/domain"
)

// UpsertMeasurements writes measurement rows in one set-based statement
// keyed by (ts, station_id). On conflict each quantity is taken from the
// incoming row only when non-null, so a partial update never destroys a
// previously known value, and the write is skipped entirely when nothing
// actually differs, keeping updated-at style bookkeeping meaningful.
// Returns the number of rows actually written.
func (s *Store) UpsertMeasurements(ctx context.Context, rows []domain.MeasurementRow, source string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	stationIDs := make([]int64, len(rows))
	timestamps := make([]string, len(rows))
	levels := make([]*float64, len(rows))
	discharges := make([]*float64, len(rows))
	sources := make([]string, len(rows))
	for i, r := range rows {
		stationIDs[i] = r.StationID
		timestamps[i] = r.Point.TS
		levels[i] = r.Point.Level
		discharges[i] = r.Point.Discharge
		sources[i] = source
	}

	tag, err := s.pool.Exec(ctx, `
INSERT INTO measurement (station_id, ts, water_level_cm, discharge_m3s, source)
SELECT x.station_id, x.ts, x.water_level_cm, x.discharge_m3s, x.source
FROM UNNEST(
    $1::BIGINT[],
    $2::TIMESTAMPTZ[],
    $3::DOUBLE PRECISION[],
    $4::DOUBLE PRECISION[],
    $5::TEXT[]
) AS x(station_id, ts, water_level_cm, discharge_m3s, source)
ON CONFLICT (ts, station_id) DO UPDATE SET
    water_level_cm = COALESCE(EXCLUDED.water_level_cm, measurement.water_level_cm),
    discharge_m3s  = COALESCE(EXCLUDED.discharge_m3s,  measurement.discharge_m3s),
    source         = EXCLUDED.source
WHERE
    EXCLUDED.water_level_cm IS DISTINCT FROM measurement.water_level_cm
    OR EXCLUDED.discharge_m3s IS DISTINCT FROM measurement.discharge_m3s`,
		stationIDs, timestamps, levels, discharges, sources)
	if err != nil {
		return 0, fmt.Errorf("upsert measurements: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// LatestMeasurementTS returns the newest stored timestamp for a station, or
// nil when the station has no measurements yet.
func (s *Store) LatestMeasurementTS(ctx context.Context, stationID int64) (*time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(ts) FROM measurement WHERE station_id = $1`, stationID).Scan(&ts)
	if err != nil {
		return nil, fmt.Errorf("latest measurement ts: %w", err)
	}
	return ts, nil
}

// HistoricalCoverage returns the set of (external id, year) combinations
// that already have daily-source rows, keyed as HistoricalFile.Key. It is
// recomputed from stored measurements, not the run log, so an interrupted
// backfill resumes where the data actually stops.
func (s *Store) HistoricalCoverage(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
SELECT s.id_external, EXTRACT(YEAR FROM m.ts)::INT
FROM measurement m
JOIN station s ON s.id = m.station_id
WHERE m.source = $1
GROUP BY s.id_external, EXTRACT(YEAR FROM m.ts)`, domain.SourceDaily)
	if err != nil {
		return nil, fmt.Errorf("historical coverage: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var ext string
		var year int
		if err := rows.Scan(&ext, &year); err != nil {
			return nil, err
		}
		done[domain.HistoricalFile{ExternalID: ext, Year: year}.Key()] = struct{}{}
	}
	return done, rows.Err()
}

// MeasurementQuery filters the measurement listing for the read API.
type MeasurementQuery struct {
	StationID int64
	From      time.Time
	To        time.Time
	Limit     int
}

// ListMeasurements returns a station's measurements in the given window,
// oldest first.
func (s *Store) ListMeasurements(ctx context.Context, q MeasurementQuery) ([]domain.Measurement, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10000
	}

	rows, err := s.pool.Query(ctx, `
SELECT station_id, ts, water_level_cm, discharge_m3s, source
FROM measurement
WHERE station_id = $1 AND ts >= $2 AND ts <= $3
ORDER BY ts
LIMIT $4`, q.StationID, q.From, q.To, limit)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Measurement, 0)
	for rows.Next() {
		var m domain.Measurement
		if err := rows.Scan(&m.StationID, &m.TS, &m.Level, &m.Discharge, &m.Source); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MeasurementStats summarizes a station's window for the detail view.
type MeasurementStats struct {
	Count        int        `json:"count"`
	MinLevel     *float64   `json:"min_level_cm,omitempty"`
	MaxLevel     *float64   `json:"max_level_cm,omitempty"`
	MinDischarge *float64   `json:"min_discharge_m3s,omitempty"`
	MaxDischarge *float64   `json:"max_discharge_m3s,omitempty"`
	LatestTS     *time.Time `json:"latest_ts,omitempty"`
}

// GetMeasurementStats computes window aggregates for one station.
func (s *Store) GetMeasurementStats(ctx context.Context, q MeasurementQuery) (MeasurementStats, error) {
	var st MeasurementStats
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*),
       MIN(water_level_cm), MAX(water_level_cm),
       MIN(discharge_m3s), MAX(discharge_m3s),
       MAX(ts)
FROM measurement
WHERE station_id = $1 AND ts >= $2 AND ts <= $3`,
		q.StationID, q.From, q.To).
		Scan(&st.Count, &st.MinLevel, &st.MaxLevel, &st.MinDischarge, &st.MaxDischarge, &st.LatestTS)
	if err != nil {
		return MeasurementStats{}, fmt.Errorf("measurement stats: %w", err)
	}
	return st, nil
}
