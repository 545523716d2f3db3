// Package api exposes the read-facing REST surface plus health, metrics,
// and admin trigger endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riverwatch/hydro-data-service/internal/config"
	"github.com/riverwatch/hydro-data-service/internal/domain"
	"github.com/riverwatch/hydro-data-service/internal/ingest"
	"github.com/riverwatch/hydro-data-service/internal/storage"
)

// Store is the read-side persistence surface the API needs.
type Store interface {
	Ping(ctx context.Context) error
	ListStations(ctx context.Context) ([]domain.Station, error)
	GetStation(ctx context.Context, id int64) (*domain.Station, error)
	ListMeasurements(ctx context.Context, q storage.MeasurementQuery) ([]domain.Measurement, error)
	GetMeasurementStats(ctx context.Context, q storage.MeasurementQuery) (storage.MeasurementStats, error)
	ListRuns(ctx context.Context, limit int) ([]domain.IngestRun, error)
}

// Ingestor triggers pipeline work from admin endpoints and the per-station
// freshness gate. Implemented by ingest.Service.
type Ingestor interface {
	RunDiscoverIfNeeded(ctx context.Context) (ingest.DiscoverResult, error)
	IngestNow(ctx context.Context) (ingest.NowResult, error)
	IngestHistoricalBatch(ctx context.Context) (ingest.HistoricalResult, error)
	IngestStationIfStale(ctx context.Context, stationID int64) (ingest.FreshnessResult, error)
}

// Server bundles the gin router and its dependencies.
type Server struct {
	cfg      *config.Config
	store    Store
	ingestor Ingestor
	cache    *stationCache
	logger   *slog.Logger
	engine   *gin.Engine
}

// New constructs a server with routes and middleware registered.
func New(cfg *config.Config, store Store, ingestor Ingestor, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(correlationMiddleware())
	engine.Use(corsMiddleware())

	s := &Server{
		cfg:      cfg,
		store:    store,
		ingestor: ingestor,
		cache:    newStationCache(stationCacheTTL),
		logger:   logger,
		engine:   engine,
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is canceled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/readyz", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/stations", s.handleListStations)
		v1.GET("/stations/:id", s.handleGetStation)
		v1.GET("/stations/:id/measurements", s.handleListMeasurements)
		v1.GET("/runs", s.handleListRuns)
	}

	admin := v1.Group("/admin")
	if s.cfg.APIBearerToken != "" {
		admin.Use(bearerAuthMiddleware(s.cfg.APIBearerToken))
	}
	{
		admin.POST("/discover", s.handleAdminDiscover)
		admin.POST("/ingest", s.handleAdminIngest)
		admin.POST("/backfill", s.handleAdminBackfill)
	}
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("correlation_id", id)
		c.Header("X-Correlation-ID", id)
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
