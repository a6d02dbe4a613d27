package eta

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"

	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/models"
)

// ErrNoRoute is returned when a provider finds no route between two points.
var ErrNoRoute = errors.New("no route found")

// Client returns the driving duration between two points.
type Client interface {
	EstimateSeconds(ctx context.Context, from, to models.Location) (float64, error)
}

// Cache is a tiny in-memory cache for ETA lookups keyed by geohash cells.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

// cachePrecision of 8 characters is a cell of roughly 38m x 19m.
const cachePrecision = 8

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Location) string {
	return geohash.EncodeWithPrecision(a.Lat, a.Lon, cachePrecision) + "->" + geohash.EncodeWithPrecision(b.Lat, b.Lon, cachePrecision)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Location) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Location, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// HaversineClient estimates straight-line duration at a fixed speed. It needs
// no network and is the fallback when no routing engine is configured.
type HaversineClient struct {
	SpeedMps float64
}

func (h HaversineClient) EstimateSeconds(ctx context.Context, from, to models.Location) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return EstimateSeconds(from, to, h.SpeedMps), nil
}

// EstimateSeconds is distance / speed_mps.
func EstimateSeconds(from, to models.Location, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h default city speed
	}
	return geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / speedMps
}
