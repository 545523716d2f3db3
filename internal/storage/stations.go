package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/riverwatch/hydro-data-service/internal/domain"
)

// CountStations returns the total number of stations, placeholders included.
func (s *Store) CountStations(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM station`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stations: %w", err)
	}
	return n, nil
}

// InsertPlaceholderStations inserts any unknown external ids as minimal
// placeholder stations (name defaulted to the id). Existing stations are
// left untouched: discovery never overwrites metadata.
func (s *Store) InsertPlaceholderStations(ctx context.Context, externalIDs []string) (int, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `
INSERT INTO station (id_external, name, is_active, is_placeholder, meta, updated_at)
SELECT x, x, TRUE, TRUE, '{}'::JSONB, NOW()
FROM UNNEST($1::TEXT[]) AS x
ON CONFLICT (id_external) DO NOTHING`, externalIDs)
	if err != nil {
		return 0, fmt.Errorf("insert placeholder stations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpsertRiver creates or touches a river by its unique name and returns the
// internal id.
func (s *Store) UpsertRiver(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO river (name, meta, updated_at)
VALUES ($1, '{}'::JSONB, NOW())
ON CONFLICT (name) DO UPDATE SET updated_at = NOW()
RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert river %q: %w", name, err)
	}
	return id, nil
}

// UpsertStation refreshes one station's metadata by external id. On conflict
// it overwrites code, name, river, coordinates and meta, forces the station
// active and clears the placeholder flag.
func (s *Store) UpsertStation(ctx context.Context, meta domain.StationMeta, riverID *int64) error {
	raw, err := json.Marshal(meta.Raw)
	if err != nil {
		return fmt.Errorf("marshal station meta: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO station (id_external, code, name, river_id, lat, lon, is_active, is_placeholder, meta, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, FALSE, $7, NOW())
ON CONFLICT (id_external) DO UPDATE SET
    code = EXCLUDED.code,
    name = EXCLUDED.name,
    river_id = EXCLUDED.river_id,
    lat = EXCLUDED.lat,
    lon = EXCLUDED.lon,
    is_active = TRUE,
    is_placeholder = FALSE,
    meta = EXCLUDED.meta,
    updated_at = NOW()`,
		meta.ExternalID, meta.Code, meta.Name, riverID, meta.Lat, meta.Lon, raw)
	if err != nil {
		return fmt.Errorf("upsert station %q: %w", meta.ExternalID, err)
	}
	return nil
}

// ListActiveExternalIDs returns the external ids of all active stations in
// stable order.
func (s *Store) ListActiveExternalIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id_external
FROM station
WHERE is_active = TRUE
ORDER BY id_external`)
	if err != nil {
		return nil, fmt.Errorf("list active external ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StationIDsByExternal resolves external ids to internal ids. Internal ids
// are always looked up fresh; they are never carried across runs.
func (s *Store) StationIDsByExternal(ctx context.Context, externalIDs []string) (map[string]int64, error) {
	result := make(map[string]int64, len(externalIDs))
	if len(externalIDs) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, id_external
FROM station
WHERE id_external = ANY($1::TEXT[])`, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve station ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var ext string
		if err := rows.Scan(&id, &ext); err != nil {
			return nil, err
		}
		result[ext] = id
	}
	return result, rows.Err()
}

// StationExternalID returns the external id of one station.
func (s *Store) StationExternalID(ctx context.Context, stationID int64) (string, error) {
	var ext string
	err := s.pool.QueryRow(ctx,
		`SELECT id_external FROM station WHERE id = $1`, stationID).Scan(&ext)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("station %d not found", stationID)
	}
	if err != nil {
		return "", fmt.Errorf("station external id: %w", err)
	}
	return ext, nil
}

// TouchStation bumps a station's updated_at after an on-demand refresh.
func (s *Store) TouchStation(ctx context.Context, stationID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE station SET updated_at = NOW() WHERE id = $1`, stationID)
	if err != nil {
		return fmt.Errorf("touch station %d: %w", stationID, err)
	}
	return nil
}

const stationColumns = `
    s.id, s.id_external, s.code, s.name, s.river_id, r.name, s.lat, s.lon,
    s.is_active, s.is_placeholder, s.meta, s.created_at, s.updated_at`

// ListStations returns all active, enriched stations for the read API.
// Placeholder stations discovered but never refreshed are filtered out.
func (s *Store) ListStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.pool.Query(ctx, `
SELECT`+stationColumns+`
FROM station s
LEFT JOIN river r ON r.id = s.river_id
WHERE s.is_active = TRUE AND s.is_placeholder = FALSE
ORDER BY s.name, s.id`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	stations := make([]domain.Station, 0)
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// GetStation returns one station by internal id, or nil when absent.
func (s *Store) GetStation(ctx context.Context, id int64) (*domain.Station, error) {
	row := s.pool.QueryRow(ctx, `
SELECT`+stationColumns+`
FROM station s
LEFT JOIN river r ON r.id = s.river_id
WHERE s.id = $1`, id)

	st, err := scanStation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get station %d: %w", id, err)
	}
	return &st, nil
}

func scanStation(row pgx.Row) (domain.Station, error) {
	var st domain.Station
	err := row.Scan(
		&st.ID,
		&st.ExternalID,
		&st.Code,
		&st.Name,
		&st.RiverID,
		&st.RiverName,
		&st.Lat,
		&st.Lon,
		&st.Active,
		&st.Placeholder,
		&st.Meta,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	return st, err
}
