package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riverwatch/hydro-data-service/internal/storage"
)

const (
	defaultPeriod        = "1d"
	defaultRunsLimit     = 50
	maxMeasurementsLimit = 50000
)

// periodWindows maps the shorthand period query values to lookback spans.
var periodWindows = map[string]time.Duration{
	"1d":  24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

func (s *Server) handleListStations(c *gin.Context) {
	if stations, ok := s.cache.get(); ok {
		c.JSON(http.StatusOK, gin.H{"count": len(stations), "stations": stations})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stations, err := s.store.ListStations(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cache.put(stations)

	c.JSON(http.StatusOK, gin.H{"count": len(stations), "stations": stations})
}

func (s *Server) handleGetStation(c *gin.Context) {
	id, ok := parseStationID(c)
	if !ok {
		return
	}

	window, ok := parseWindow(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	station, err := s.store.GetStation(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if station == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "station not found"})
		return
	}

	// Opportunistic refresh. A failure here must not break the read path.
	if s.ingestor != nil {
		if _, err := s.ingestor.IngestStationIfStale(ctx, id); err != nil {
			s.logger.Warn("stale refresh failed", "station_id", id, "error", err)
		}
	}

	q := storage.MeasurementQuery{StationID: id, From: window.from, To: window.to}
	measurements, err := s.store.ListMeasurements(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats, err := s.store.GetMeasurementStats(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"station":      station,
		"from":         window.from,
		"to":           window.to,
		"stats":        stats,
		"measurements": measurements,
	})
}

func (s *Server) handleListMeasurements(c *gin.Context) {
	id, ok := parseStationID(c)
	if !ok {
		return
	}

	window, ok := parseWindow(c)
	if !ok {
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > maxMeasurementsLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	measurements, err := s.store.ListMeasurements(ctx, storage.MeasurementQuery{
		StationID: id,
		From:      window.from,
		To:        window.to,
		Limit:     limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"station_id":   id,
		"from":         window.from,
		"to":           window.to,
		"count":        len(measurements),
		"measurements": measurements,
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(runs), "runs": runs})
}

func (s *Server) handleAdminDiscover(c *gin.Context) {
	result, err := s.ingestor.RunDiscoverIfNeeded(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cache.invalidate()
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAdminIngest(c *gin.Context) {
	result, err := s.ingestor.IngestNow(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAdminBackfill(c *gin.Context) {
	result, err := s.ingestor.IngestHistoricalBatch(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseStationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid station id"})
		return 0, false
	}
	return id, true
}

type timeWindow struct {
	from time.Time
	to   time.Time
}

// parseWindow resolves the query window: explicit from/to (RFC 3339) win
// over the period shorthand; bare "from" runs to now, bare "to" looks back
// one period before it.
func parseWindow(c *gin.Context) (timeWindow, bool) {
	period := c.DefaultQuery("period", defaultPeriod)
	span, ok := periodWindows[period]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period, use one of 1d, 3d, 7d, 30d"})
		return timeWindow{}, false
	}

	now := time.Now().UTC()
	w := timeWindow{from: now.Add(-span), to: now}

	if fromStr := c.Query("from"); fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return timeWindow{}, false
		}
		w.from = t.UTC()
	}
	if toStr := c.Query("to"); toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return timeWindow{}, false
		}
		w.to = t.UTC()
		if c.Query("from") == "" {
			w.from = w.to.Add(-span)
		}
	}
	if !w.to.After(w.from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window is empty"})
		return timeWindow{}, false
	}
	return w, true
}
