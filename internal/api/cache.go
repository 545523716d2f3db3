package api

import (
	"sync"
	"time"

	"github.com/riverwatch/hydro-data-service/internal/domain"
)

const stationCacheTTL = 60 * time.Second

// stationCache is a single-value TTL cache for the station directory. The
// directory changes only on discovery or metadata refresh, so a short TTL
// keeps the hot listing endpoint off the database.
type stationCache struct {
	ttl time.Duration

	mu       sync.Mutex
	stations []domain.Station
	loadedAt time.Time
}

func newStationCache(ttl time.Duration) *stationCache {
	return &stationCache{ttl: ttl}
}

func (c *stationCache) get() ([]domain.Station, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stations == nil || time.Since(c.loadedAt) > c.ttl {
		return nil, false
	}
	return c.stations, true
}

func (c *stationCache) put(stations []domain.Station) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stations = stations
	c.loadedAt = time.Now()
}

func (c *stationCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stations = nil
}
