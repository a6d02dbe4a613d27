package eta

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/example/ride-booking/internal/models"
)

// GoogleClient resolves durations through the Google Directions API.
type GoogleClient struct {
	client *maps.Client
}

// NewGoogleClient accepts extra options so tests can point the client at a
// local server with maps.WithBaseURL.
func NewGoogleClient(apiKey string, opts ...maps.ClientOption) (*GoogleClient, error) {
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleClient{client: c}, nil
}

func (g *GoogleClient) EstimateSeconds(ctx context.Context, from, to models.Location) (float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", from.Lat, from.Lon),
		Destination: fmt.Sprintf("%f,%f", to.Lat, to.Lon),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, ErrNoRoute
	}
	var total float64
	for _, leg := range routes[0].Legs {
		total += leg.Duration.Seconds()
	}
	return total, nil
}
