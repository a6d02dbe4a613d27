package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values come from environment variables, optionally seeded by a config file
// named in CONFIG_FILE (any format viper reads, including .env).
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	SearchRadiusM float64

	KafkaBrokers       []string
	KafkaLocationTopic string
	KafkaRideTopic     string

	PGDSN string

	StripeSecretKey string

	ETAProvider       string // osrm, google or haversine
	OSRMEndpoint      string
	GoogleMapsAPIKey  string
	ETARequestTimeout time.Duration
	ETACacheTTL       time.Duration
	ETAMaxConcurrency int // 0 is unbounded
	DefaultSpeedMps   float64
	RatePerMinute     float64
	QuoteTopN         int

	PushWebhookURL string

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RedisGeoKey:        "drivers_geo",
		SearchRadiusM:      5000,
		KafkaLocationTopic: "driver-locations",
		KafkaRideTopic:     "rides-booked",
		ETAProvider:        "haversine",
		ETARequestTimeout:  3 * time.Second,
		ETACacheTTL:        time.Minute,
		DefaultSpeedMps:    10,
		RatePerMinute:      0.5,
		LogLevel:           "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	cfg := defaultServerConfig()
	var errs []error

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", file, err))
		}
	}

	setString(v, &cfg.HTTPAddr, "HTTP_ADDR")
	setDuration(v, &cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDuration(v, &cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDuration(v, &cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDuration(v, &cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setString(v, &cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = v.GetString("REDIS_PASSWORD")
	setString(v, &cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setFloat(v, &cfg.SearchRadiusM, "DRIVER_SEARCH_RADIUS_M", &errs)

	if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setString(v, &cfg.KafkaLocationTopic, "KAFKA_TOPIC")
	setString(v, &cfg.KafkaRideTopic, "KAFKA_RIDE_TOPIC")

	setString(v, &cfg.PGDSN, "PG_DSN")
	setString(v, &cfg.StripeSecretKey, "STRIPE_SECRET_KEY")

	if p := v.GetString("ETA_PROVIDER"); p != "" {
		cfg.ETAProvider = strings.ToLower(strings.TrimSpace(p))
	}
	setString(v, &cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	setString(v, &cfg.GoogleMapsAPIKey, "GOOGLE_MAPS_API_KEY")
	setDuration(v, &cfg.ETARequestTimeout, "ETA_REQUEST_TIMEOUT", &errs)
	setDuration(v, &cfg.ETACacheTTL, "ETA_CACHE_TTL", &errs)
	setInt(v, &cfg.ETAMaxConcurrency, "ETA_MAX_CONCURRENCY", &errs)
	setFloat(v, &cfg.DefaultSpeedMps, "ETA_DEFAULT_SPEED_MPS", &errs)
	setFloat(v, &cfg.RatePerMinute, "FARE_RATE_PER_MINUTE", &errs)
	setInt(v, &cfg.QuoteTopN, "QUOTE_TOP_N", &errs)

	setString(v, &cfg.PushWebhookURL, "PUSH_WEBHOOK_URL")

	if l := v.GetString("LOG_LEVEL"); l != "" {
		cfg.LogLevel = strings.ToLower(l)
	}
	cfg.RunMigrations = strings.EqualFold(v.GetString("MIGRATE"), "true")

	switch cfg.ETAProvider {
	case "haversine":
	case "osrm":
		if cfg.OSRMEndpoint == "" {
			errs = append(errs, fmt.Errorf("OSRM_ENDPOINT is required when ETA_PROVIDER=osrm"))
		}
	case "google":
		if cfg.GoogleMapsAPIKey == "" {
			errs = append(errs, fmt.Errorf("GOOGLE_MAPS_API_KEY is required when ETA_PROVIDER=google"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ETA_PROVIDER %q", cfg.ETAProvider))
	}
	if cfg.ETAMaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("ETA_MAX_CONCURRENCY must be >= 0"))
	}
	if cfg.QuoteTopN < 0 {
		errs = append(errs, fmt.Errorf("QUOTE_TOP_N must be >= 0"))
	}
	if cfg.ETARequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ETA_REQUEST_TIMEOUT must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDuration(v *viper.Viper, target *time.Duration, key string, errs *[]error) {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloat(v *viper.Viper, target *float64, key string, errs *[]error) {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setInt(v *viper.Viper, target *int, key string, errs *[]error) {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		i, err := strconv.Atoi(s)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setString(v *viper.Viper, target *string, key string) {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		*target = s
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ConsumerConfig drives the driver-location consumer.
type ConsumerConfig struct {
	KafkaBrokers []string
	Topic        string
	Group        string
	RedisAddr    string
	RedisGeoKey  string
	MetricsAddr  string
	LogLevel     string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	cfg := ConsumerConfig{
		KafkaBrokers: []string{"localhost:9092"},
		Topic:        "driver-locations",
		Group:        "ride-booking-consumer",
		RedisAddr:    "localhost:6379",
		RedisGeoKey:  "drivers_geo",
		MetricsAddr:  ":2112",
		LogLevel:     "info",
	}
	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read %s: %w", file, err)
		}
	}
	brokers := v.GetString("KAFKA_BROKERS")
	if brokers == "" {
		brokers = v.GetString("KAFKA_BROKER")
	}
	if b := splitAndTrim(brokers); len(b) > 0 {
		cfg.KafkaBrokers = b
	}
	setString(v, &cfg.Topic, "KAFKA_TOPIC")
	setString(v, &cfg.Group, "KAFKA_GROUP")
	setString(v, &cfg.RedisAddr, "REDIS_ADDR")
	setString(v, &cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setString(v, &cfg.MetricsAddr, "METRICS_ADDR")
	setString(v, &cfg.LogLevel, "LOG_LEVEL")
	return cfg, nil
}

// CheckoutConfig drives the headless checkout client.
type CheckoutConfig struct {
	APIBaseURL   string
	StepTimeout  time.Duration
	MerchantName string
	LogLevel     string
}

func LoadCheckoutConfig() (CheckoutConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	cfg := CheckoutConfig{
		APIBaseURL:   "http://localhost:8080",
		StepTimeout:  10 * time.Second,
		MerchantName: "Ryde Inc.",
		LogLevel:     "warn",
	}
	var errs []error
	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", file, err))
		}
	}
	setString(v, &cfg.APIBaseURL, "API_BASE_URL")
	setDuration(v, &cfg.StepTimeout, "CHECKOUT_STEP_TIMEOUT", &errs)
	setString(v, &cfg.MerchantName, "MERCHANT_NAME")
	setString(v, &cfg.LogLevel, "LOG_LEVEL")
	if cfg.StepTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CHECKOUT_STEP_TIMEOUT must be > 0"))
	}
	return cfg, errors.Join(errs...)
}
