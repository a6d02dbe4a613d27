package geo

import (
	"strconv"
	"strings"

	"github.com/example/ride-booking/internal/models"
)

const jitterStep = 0.002

// GenerateMarkers places one marker per driver around the user location.
// Offsets come from a fixed grid indexed by position so identical input
// always renders identically.
func GenerateMarkers(drivers []models.Driver, user models.Location) []models.Marker {
	out := make([]models.Marker, 0, len(drivers))
	for i, d := range drivers {
		dLat, dLon := jitter(i)
		out = append(out, models.Marker{
			ID:              d.ID,
			Loc:             models.Location{Lat: user.Lat + dLat, Lon: user.Lon + dLon},
			Title:           markerTitle(d, i),
			FirstName:       d.FirstName,
			LastName:        d.LastName,
			ProfileImageURL: d.ProfileImageURL,
			CarImageURL:     d.CarImageURL,
			CarSeats:        d.CarSeats,
			Rating:          d.Rating,
			BaseRate:        d.BaseRate,
		})
	}
	return out
}

// jitter walks square rings of grid cells outward from the user: ring 1
// holds indices 0-7, ring 2 indices 8-23, and so on. The first 24 drivers
// fill a 5x5 grid without its centre cell, and no two indices share a cell.
func jitter(i int) (float64, float64) {
	ring := 1
	for i >= 8*ring {
		i -= 8 * ring
		ring++
	}
	side, pos := i/(2*ring), i%(2*ring)
	var row, col int
	switch side {
	case 0:
		row, col = -ring, -ring+pos
	case 1:
		row, col = -ring+pos, ring
	case 2:
		row, col = ring, ring-pos
	default:
		row, col = ring-pos, -ring
	}
	return float64(row) * jitterStep, float64(col) * jitterStep
}

func markerTitle(d models.Driver, i int) string {
	if name := strings.TrimSpace(d.FirstName + " " + d.LastName); name != "" {
		return name
	}
	return "Driver " + strconv.Itoa(i+1)
}
