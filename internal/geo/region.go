package geo

import (
	"fmt"
	"math"

	"github.com/example/ride-booking/internal/models"
)

const (
	// DefaultDelta is the zoom used when only the user location is known.
	DefaultDelta = 0.01
	// MinDelta keeps near-identical points from over-zooming the map.
	MinDelta = 0.01
	// RegionPadding is applied to the span between user and destination.
	RegionPadding = 1.3
)

// ErrInvalidInput is returned when the user location is missing.
var ErrInvalidInput = fmt.Errorf("geo: %w", models.ErrInvalidInput)

// ComputeRegion returns the viewport containing the user and, when present,
// the destination.
func ComputeRegion(user, dest *models.Location) (models.Region, error) {
	if user == nil {
		return models.Region{}, fmt.Errorf("%w: user location is required", ErrInvalidInput)
	}
	if dest == nil {
		return models.Region{
			Latitude:       user.Lat,
			Longitude:      user.Lon,
			LatitudeDelta:  DefaultDelta,
			LongitudeDelta: DefaultDelta,
		}, nil
	}

	minLat, maxLat := math.Min(user.Lat, dest.Lat), math.Max(user.Lat, dest.Lat)
	// the shorter way round, so a trip across the antimeridian stays narrow
	dLon := models.WrapLongitude(dest.Lon - user.Lon)

	return models.Region{
		Latitude:       (minLat + maxLat) / 2,
		Longitude:      models.WrapLongitude(user.Lon + dLon/2),
		LatitudeDelta:  math.Max((maxLat-minLat)*RegionPadding, MinDelta),
		LongitudeDelta: math.Min(math.Max(math.Abs(dLon)*RegionPadding, MinDelta), 360),
	}, nil
}
