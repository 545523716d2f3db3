package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/hydro-data-service/internal/config"
	"github.com/riverwatch/hydro-data-service/internal/domain"
	"github.com/riverwatch/hydro-data-service/internal/ingest"
	"github.com/riverwatch/hydro-data-service/internal/storage"
)

type fakeStore struct {
	pingErr      error
	stations     []domain.Station
	listCalls    int
	station      *domain.Station
	measurements []domain.Measurement
	stats        storage.MeasurementStats
	runs         []domain.IngestRun
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) ListStations(ctx context.Context) ([]domain.Station, error) {
	f.listCalls++
	return f.stations, nil
}

func (f *fakeStore) GetStation(ctx context.Context, id int64) (*domain.Station, error) {
	return f.station, nil
}

func (f *fakeStore) ListMeasurements(ctx context.Context, q storage.MeasurementQuery) ([]domain.Measurement, error) {
	return f.measurements, nil
}

func (f *fakeStore) GetMeasurementStats(ctx context.Context, q storage.MeasurementQuery) (storage.MeasurementStats, error) {
	return f.stats, nil
}

func (f *fakeStore) ListRuns(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	return f.runs, nil
}

type fakeIngestor struct {
	discoverCalls  int
	ingestCalls    int
	backfillCalls  int
	freshnessCalls int
	freshnessErr   error
}

func (f *fakeIngestor) RunDiscoverIfNeeded(ctx context.Context) (ingest.DiscoverResult, error) {
	f.discoverCalls++
	return ingest.DiscoverResult{DiscoveredStations: 3}, nil
}

func (f *fakeIngestor) IngestNow(ctx context.Context) (ingest.NowResult, error) {
	f.ingestCalls++
	return ingest.NowResult{Files: 2, RowsUpserted: 10}, nil
}

func (f *fakeIngestor) IngestHistoricalBatch(ctx context.Context) (ingest.HistoricalResult, error) {
	f.backfillCalls++
	return ingest.HistoricalResult{Fetched: 50, Remaining: 70}, nil
}

func (f *fakeIngestor) IngestStationIfStale(ctx context.Context, stationID int64) (ingest.FreshnessResult, error) {
	f.freshnessCalls++
	return ingest.FreshnessResult{}, f.freshnessErr
}

func newTestServer(cfg *config.Config, store Store, ingestor Ingestor) *Server {
	if cfg == nil {
		cfg = &config.Config{HTTPAddr: ":0", ShutdownTimeout: time.Second}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, store, ingestor, logger)
}

func doRequest(t *testing.T, s *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthAndReadiness(t *testing.T) {
	t.Run("healthz", func(t *testing.T) {
		s := newTestServer(nil, &fakeStore{}, &fakeIngestor{})
		rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz ok", func(t *testing.T) {
		s := newTestServer(nil, &fakeStore{}, &fakeIngestor{})
		rec := doRequest(t, s, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz unavailable when the database is down", func(t *testing.T) {
		s := newTestServer(nil, &fakeStore{pingErr: errors.New("down")}, &fakeIngestor{})
		rec := doRequest(t, s, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestCorrelationHeader(t *testing.T) {
	s := newTestServer(nil, &fakeStore{}, &fakeIngestor{})

	t.Run("generated when absent", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
		assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	})

	t.Run("echoed when present", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/healthz", map[string]string{"X-Correlation-ID": "req-42"})
		assert.Equal(t, "req-42", rec.Header().Get("X-Correlation-ID"))
	})
}

func TestListStations(t *testing.T) {
	store := &fakeStore{stations: []domain.Station{
		{ID: 1, ExternalID: "307245", Name: "Praha-Chuchle"},
		{ID: 2, ExternalID: "308190", Name: "Brandýs nad Labem"},
	}}
	s := newTestServer(nil, store, &fakeIngestor{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/stations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])

	// Second hit is served from the TTL cache.
	rec = doRequest(t, s, http.MethodGet, "/api/v1/stations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.listCalls)
}

func TestGetStation(t *testing.T) {
	t.Run("detail with freshness gate", func(t *testing.T) {
		now := time.Now().UTC()
		store := &fakeStore{
			station: &domain.Station{ID: 1, ExternalID: "307245", Name: "Praha-Chuchle"},
			measurements: []domain.Measurement{
				{StationID: 1, TS: now, Source: domain.SourceNow},
			},
			stats: storage.MeasurementStats{Count: 1},
		}
		ingestor := &fakeIngestor{}
		s := newTestServer(nil, store, ingestor)

		rec := doRequest(t, s, http.MethodGet, "/api/v1/stations/1?period=7d", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, ingestor.freshnessCalls)

		body := decodeBody(t, rec)
		assert.NotNil(t, body["station"])
		assert.NotNil(t, body["stats"])
	})

	t.Run("freshness gate failure does not break the read", func(t *testing.T) {
		store := &fakeStore{station: &domain.Station{ID: 1}}
		s := newTestServer(nil, store, &fakeIngestor{freshnessErr: errors.New("upstream down")})

		rec := doRequest(t, s, http.MethodGet, "/api/v1/stations/1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown station", func(t *testing.T) {
		s := newTestServer(nil, &fakeStore{}, &fakeIngestor{})
		rec := doRequest(t, s, http.MethodGet, "/api/v1/stations/99", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		s := newTestServer(nil, &fakeStore{}, &fakeIngestor{})
		rec := doRequest(t, s, http.MethodGet, "/api/v1/stations/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid period", func(t *testing.T) {
		s := newTestServer(nil, &fakeStore{}, &fakeIngestor{})
		rec := doRequest(t, s, http.MethodGet, "/api/v1/stations/1?period=90d", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListMeasurements(t *testing.T) {
	t.Run("explicit window", func(t *testing.T) {
		store := &fakeStore{measurements: []domain.Measurement{{StationID: 1}}}
		s := newTestServer(nil, store, &fakeIngestor{})

		rec := doRequest(t, s, http.MethodGet,
			"/api/v1/stations/1/measurements?from=2026-08-01T00:00:00Z&to=2026-08-02T00:00:00Z", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("inverted window", func(t *testing.T) {
		s := newTestServer(nil, &fakeStore{}, &fakeIngestor{})
		rec := doRequest(t, s, http.MethodGet,
			"/api/v1/stations/1/measurements?from=2026-08-02T00:00:00Z&to=2026-08-01T00:00:00Z", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		s := newTestServer(nil, &fakeStore{}, &fakeIngestor{})
		rec := doRequest(t, s, http.MethodGet, "/api/v1/stations/1/measurements?limit=-5", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListRuns(t *testing.T) {
	store := &fakeStore{runs: []domain.IngestRun{{ID: 1, Kind: domain.RunIngest}}}
	s := newTestServer(nil, store, &fakeIngestor{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
}

func TestAdminEndpoints(t *testing.T) {
	authedCfg := func() *config.Config {
		return &config.Config{HTTPAddr: ":0", ShutdownTimeout: time.Second, APIBearerToken: "secret"}
	}

	t.Run("require the bearer token when configured", func(t *testing.T) {
		s := newTestServer(authedCfg(), &fakeStore{}, &fakeIngestor{})

		rec := doRequest(t, s, http.MethodPost, "/api/v1/admin/ingest", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = doRequest(t, s, http.MethodPost, "/api/v1/admin/ingest",
			map[string]string{"Authorization": "Bearer wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("accept the right token", func(t *testing.T) {
		ingestor := &fakeIngestor{}
		s := newTestServer(authedCfg(), &fakeStore{}, ingestor)

		rec := doRequest(t, s, http.MethodPost, "/api/v1/admin/ingest",
			map[string]string{"Authorization": "Bearer secret"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, ingestor.ingestCalls)
	})

	t.Run("open when no token is configured", func(t *testing.T) {
		ingestor := &fakeIngestor{}
		s := newTestServer(nil, &fakeStore{}, ingestor)

		for path, count := range map[string]*int{
			"/api/v1/admin/discover": &ingestor.discoverCalls,
			"/api/v1/admin/ingest":   &ingestor.ingestCalls,
			"/api/v1/admin/backfill": &ingestor.backfillCalls,
		} {
			rec := doRequest(t, s, http.MethodPost, path, nil)
			assert.Equal(t, http.StatusOK, rec.Code, path)
			assert.Equal(t, 1, *count, path)
		}
	})

	t.Run("discover invalidates the station cache", func(t *testing.T) {
		store := &fakeStore{stations: []domain.Station{{ID: 1}}}
		s := newTestServer(nil, store, &fakeIngestor{})

		doRequest(t, s, http.MethodGet, "/api/v1/stations", nil)
		doRequest(t, s, http.MethodPost, "/api/v1/admin/discover", nil)
		doRequest(t, s, http.MethodGet, "/api/v1/stations", nil)
		assert.Equal(t, 2, store.listCalls)
	})
}

func TestStationCache_TTL(t *testing.T) {
	c := newStationCache(20 * time.Millisecond)

	_, ok := c.get()
	assert.False(t, ok)

	c.put([]domain.Station{{ID: 1}})
	got, ok := c.get()
	require.True(t, ok)
	assert.Len(t, got, 1)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.get()
	assert.False(t, ok)

	c.put([]domain.Station{{ID: 1}})
	c.invalidate()
	_, ok = c.get()
	assert.False(t, ok)
}
