package httpapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-booking/internal/config"
	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/eta"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/ingest"
	"github.com/example/ride-booking/internal/matcher"
	"github.com/example/ride-booking/internal/payments"
	"github.com/example/ride-booking/internal/storage"
)

// NewServerFromConfig wires the server with config-driven fallbacks: Redis,
// Postgres, Kafka and Stripe are used when configured, in-memory or disabled
// otherwise. The returned func releases the connections it opened.
func NewServerFromConfig(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*Server, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	d := Deps{Logger: logger, WSReg: dispatch.NewWSRegistry()}

	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		closers = append(closers, rc.Close)
		d.Drivers = geo.NewRedisGeo(rc, cfg.RedisGeoKey, cfg.SearchRadiusM)
		d.Idempotency = NewRedisIdempotency(rc)
	} else {
		d.Drivers = geo.NewIndex()
	}

	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, ps.Close)
		if cfg.RunMigrations {
			applied, err := ps.Migrate(ctx)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			logger.Info("migrations applied", "files", applied)
		}
		d.Rides = ps
	} else {
		d.Rides = storage.NewMemoryStore()
	}

	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic, cfg.KafkaRideTopic)
		closers = append(closers, kp.Close)
		d.Publisher = kp
	}

	if cfg.StripeSecretKey != "" {
		sc, err := payments.NewStripeClient(cfg.StripeSecretKey, nil)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		d.Payments = sc
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; payment endpoints disabled")
	}

	client, err := etaClient(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	calc := eta.NewCalculator(client, logger)
	calc.RequestTimeout = cfg.ETARequestTimeout
	calc.RatePerMinute = cfg.RatePerMinute
	calc.Concurrency = cfg.ETAMaxConcurrency

	d.Quotes = &matcher.Service{Drivers: d.Drivers, ETA: calc, TopN: cfg.QuoteTopN}
	d.Notifier = dispatch.NewPushDispatcher(cfg.PushWebhookURL, d.WSReg, logger)

	return NewServer(d), cleanup, nil
}

// etaClient builds the configured routing provider, behind a cache when
// ETA_CACHE_TTL is positive.
func etaClient(cfg config.ServerConfig) (eta.Client, error) {
	var client eta.Client
	switch cfg.ETAProvider {
	case "osrm":
		client = eta.NewOSRMClient(cfg.OSRMEndpoint)
	case "google":
		gc, err := eta.NewGoogleClient(cfg.GoogleMapsAPIKey)
		if err != nil {
			return nil, err
		}
		client = gc
	default:
		client = eta.HaversineClient{SpeedMps: cfg.DefaultSpeedMps}
	}
	if cfg.ETACacheTTL > 0 {
		client = eta.NewCachedClient(client, eta.NewCache(cfg.ETACacheTTL))
	}
	return client, nil
}
