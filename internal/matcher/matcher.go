package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

var (
	ErrDriverNotFound    = errors.New("driver not in quote")
	ErrDriverUnavailable = errors.New("driver has no estimate")
)

type Drivers interface {
	List(ctx context.Context) ([]models.Driver, error)
	Nearby(ctx context.Context, loc models.Location, limit int) ([]models.Driver, error)
}

type TimeCalculator interface {
	ComputeDriverTimes(ctx context.Context, markers []models.Marker, user, dest *models.Location) []models.Marker
}

// Service builds the map-screen quote. It keeps no state between calls;
// every quote is derived from a fresh drivers fetch.
type Service struct {
	Drivers Drivers
	ETA     TimeCalculator
	TopN    int // 0 lists every driver
}

func (s *Service) Quote(ctx context.Context, user, dest *models.Location) (models.Quote, error) {
	region, err := geo.ComputeRegion(user, dest)
	if err != nil {
		return models.Quote{}, err
	}
	var drivers []models.Driver
	if s.TopN > 0 {
		drivers, err = s.Drivers.Nearby(ctx, *user, s.TopN)
	} else {
		drivers, err = s.Drivers.List(ctx)
	}
	if err != nil {
		return models.Quote{}, fmt.Errorf("fetch drivers: %w", err)
	}
	markers := geo.GenerateMarkers(drivers, *user)
	markers = s.ETA.ComputeDriverTimes(ctx, markers, user, dest)
	if dest != nil {
		Rank(markers)
	}
	observability.QuotesTotal.Inc()
	return models.Quote{Region: region, Markers: markers}, nil
}

// Rank orders reachable drivers by time, then price, then rating; drivers
// without an estimate go last. The sort is stable.
func Rank(markers []models.Marker) {
	sort.SliceStable(markers, func(i, j int) bool {
		a, b := markers[i], markers[j]
		if a.Reachable() != b.Reachable() {
			return a.Reachable()
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.Price != b.Price {
			return a.Price < b.Price
		}
		return a.Rating > b.Rating
	})
}

// Select returns the marker the user picked from a quote.
func Select(q models.Quote, driverID string) (models.Marker, error) {
	for _, m := range q.Markers {
		if m.ID != driverID {
			continue
		}
		if !m.Reachable() {
			return m, ErrDriverUnavailable
		}
		return m, nil
	}
	return models.Marker{}, ErrDriverNotFound
}
