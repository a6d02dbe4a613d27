package eta

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

const (
	DefaultRequestTimeout = 3 * time.Second
	DefaultRatePerMinute  = 0.5
)

// Calculator annotates driver markers with travel time and fare. Wrap Client
// in a CachedClient to reuse lookups across batches.
type Calculator struct {
	Client         Client
	RequestTimeout time.Duration
	RatePerMinute  float64

	// Concurrency caps in-flight drivers. Zero runs every driver at once, so a
	// batch takes as long as its slowest driver.
	Concurrency int
	Logger      *slog.Logger
}

func NewCalculator(client Client, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		Client:         client,
		RequestTimeout: DefaultRequestTimeout,
		RatePerMinute:  DefaultRatePerMinute,
		Logger:         logger,
	}
}

// ComputeDriverTimes returns a copy of markers with Time (minutes) and Price
// set. Without a user or destination it returns markers untouched. A marker
// whose route lookup fails gets models.Unavailable instead of failing the batch.
func (c *Calculator) ComputeDriverTimes(ctx context.Context, markers []models.Marker, user, dest *models.Location) []models.Marker {
	if user == nil || dest == nil || len(markers) == 0 {
		return markers
	}
	start := time.Now()
	out := make([]models.Marker, len(markers))
	copy(out, markers)

	g, gctx := errgroup.WithContext(ctx)
	if n := c.Concurrency; n > 0 {
		g.SetLimit(n)
	}
	for i := range out {
		i := i
		g.Go(func() error {
			m := &out[i]
			m.Annotated = true
			minutes, err := c.tripMinutes(gctx, m.Loc, *user, *dest)
			if err != nil {
				c.Logger.Warn("eta lookup failed", "driver_id", m.ID, "error", err)
				observability.ETARequests.WithLabelValues("error").Inc()
				m.Time, m.Price = models.Unavailable, models.Unavailable
				return nil
			}
			observability.ETARequests.WithLabelValues("ok").Inc()
			m.Time = minutes
			m.Price = fare(c.rate(m.BaseRate), minutes)
			return nil
		})
	}
	_ = g.Wait()
	observability.ETABatchLatency.Observe(time.Since(start).Seconds())
	return out
}

// tripMinutes is driver->user plus user->destination.
func (c *Calculator) tripMinutes(ctx context.Context, driver, user, dest models.Location) (float64, error) {
	pickup, err := c.estimate(ctx, driver, user)
	if err != nil {
		return 0, fmt.Errorf("driver to pickup: %w", err)
	}
	trip, err := c.estimate(ctx, user, dest)
	if err != nil {
		return 0, fmt.Errorf("pickup to destination: %w", err)
	}
	return (pickup + trip) / 60, nil
}

func (c *Calculator) estimate(ctx context.Context, from, to models.Location) (float64, error) {
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	secs, err := c.Client.EstimateSeconds(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("invalid duration %v", secs)
	}
	return secs, nil
}

func (c *Calculator) rate(driverRate float64) float64 {
	if driverRate > 0 {
		return driverRate
	}
	if c.RatePerMinute > 0 {
		return c.RatePerMinute
	}
	return DefaultRatePerMinute
}

func fare(rate, minutes float64) float64 {
	return math.Round(rate*minutes*100) / 100
}
