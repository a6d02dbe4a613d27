package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// Directory is the drivers listing consumed by the quote service and handlers.
type Directory interface {
	List(ctx context.Context) ([]models.Driver, error)
	Nearby(ctx context.Context, loc models.Location, limit int) ([]models.Driver, error)
	Upsert(ctx context.Context, d models.Driver) error
}

// Index is an in-memory Directory.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver)}
}

func (g *Index) Upsert(_ context.Context, d models.Driver) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = time.Now()
	g.drivers[d.ID] = d
	return nil
}

// List returns online drivers ordered by id.
func (g *Index) List(_ context.Context) ([]models.Driver, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.Driver, 0, len(g.drivers))
	for _, d := range g.drivers {
		if d.Online {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Nearby is a naive scan; fine for the handful of drivers a screen shows.
func (g *Index) Nearby(ctx context.Context, loc models.Location, limit int) ([]models.Driver, error) {
	all, _ := g.List(ctx)
	sort.SliceStable(all, func(i, j int) bool {
		return Haversine(loc.Lat, loc.Lon, all[i].Loc.Lat, all[i].Loc.Lon) <
			Haversine(loc.Lat, loc.Lon, all[j].Loc.Lat, all[j].Loc.Lon)
	})
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
