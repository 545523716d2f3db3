package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Station is a physical measurement point on a river. The internal ID is
// owned by the store; ExternalID is the upstream identifier and the only
// join key ingestion is allowed to rely on across runs.
type Station struct {
	ID          int64           `json:"id"`
	ExternalID  string          `json:"id_external"`
	Code        *string         `json:"code,omitempty"`
	Name        string          `json:"name"`
	RiverID     *int64          `json:"river_id,omitempty"`
	RiverName   *string         `json:"river_name,omitempty"`
	Lat         *float64        `json:"lat,omitempty"`
	Lon         *float64        `json:"lon,omitempty"`
	Active      bool            `json:"is_active"`
	Placeholder bool            `json:"is_placeholder"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// River owns stations, keyed by unique name. Rivers are created lazily the
// first time a station references an unseen name and are never deleted by
// ingestion.
type River struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MeasurementPoint is the atomic ingested fact: one station, one timestamp,
// zero or more of the two quantities. TS stays in upstream string form
// (ISO 8601 UTC) until it crosses into the store.
type MeasurementPoint struct {
	TS        string   `json:"ts"`
	Level     *float64 `json:"water_level_cm"`
	Discharge *float64 `json:"discharge_m3s"`
}

// MeasurementRow is a point resolved to an internal station id, ready for a
// set-based upsert.
type MeasurementRow struct {
	StationID int64
	Point     MeasurementPoint
}

// Measurement is a stored row as served by the read API.
type Measurement struct {
	StationID int64     `json:"station_id"`
	TS        time.Time `json:"ts"`
	Level     *float64  `json:"water_level_cm"`
	Discharge *float64  `json:"discharge_m3s"`
	Source    string    `json:"source"`
}

// Measurement source tags. One per upstream feed.
const (
	SourceNow   = "chmi_now"
	SourceDaily = "chmi_daily"
)

// RunKind identifies which schedulable concern an audit row belongs to.
type RunKind string

const (
	RunDiscover   RunKind = "discover"
	RunIngest     RunKind = "ingest"
	RunHistorical RunKind = "historical"
)

// RunStatus is the final state of an ingest run.
type RunStatus string

const (
	RunOK    RunStatus = "ok"
	RunError RunStatus = "error"
)

// IngestRun is an audit record for one orchestrated operation. It is written
// for observability; the only read-back is the newest successful discover
// run's start time, which gates re-discovery.
type IngestRun struct {
	ID         int64           `json:"id"`
	Kind       RunKind         `json:"kind"`
	Status     RunStatus       `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// HistoricalFile names one per-station-per-year daily file in the historical
// index.
type HistoricalFile struct {
	Name       string `json:"name"`
	ExternalID string `json:"station_ext_id"`
	Year       int    `json:"year"`
}

// Key identifies the (station, year) combination for backfill coverage
// diffing.
func (f HistoricalFile) Key() string {
	return fmt.Sprintf("%s_%d", f.ExternalID, f.Year)
}
