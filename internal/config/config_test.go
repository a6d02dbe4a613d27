package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.ETAProvider != "haversine" || cfg.ETARequestTimeout != 3*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("ETA_PROVIDER", "OSRM")
	t.Setenv("OSRM_ENDPOINT", "http://osrm:5000")
	t.Setenv("ETA_REQUEST_TIMEOUT", "1500ms")
	t.Setenv("MIGRATE", "TRUE")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.ETAProvider != "osrm" || cfg.ETARequestTimeout != 1500*time.Millisecond || !cfg.RunMigrations {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("ETA_PROVIDER", "google")
	t.Setenv("QUOTE_TOP_N", "x")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"HTTP_READ_TIMEOUT", "GOOGLE_MAPS_API_KEY", "QUOTE_TOP_N"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadServerConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.env")
	if err := os.WriteFile(file, []byte("STRIPE_SECRET_KEY=sk_test_file\nQUOTE_TOP_N=4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", file)

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.StripeSecretKey != "sk_test_file" || cfg.QuoteTopN != 4 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestLoadConsumerConfigLegacyBroker(t *testing.T) {
	t.Setenv("KAFKA_BROKER", "k1:9092")
	t.Setenv("KAFKA_GROUP", "g1")

	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "k1:9092" || cfg.Group != "g1" {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
	if cfg.Topic != "driver-locations" || cfg.RedisGeoKey != "drivers_geo" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadCheckoutConfig(t *testing.T) {
	t.Setenv("CHECKOUT_STEP_TIMEOUT", "250ms")
	t.Setenv("API_BASE_URL", "http://api:8080")

	cfg, err := LoadCheckoutConfig()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.StepTimeout != 250*time.Millisecond || cfg.APIBaseURL != "http://api:8080" {
		t.Fatalf("unexpected cfg %+v", cfg)
	}

	t.Setenv("CHECKOUT_STEP_TIMEOUT", "soon")
	if _, err := LoadCheckoutConfig(); err == nil || !strings.Contains(err.Error(), "CHECKOUT_STEP_TIMEOUT") {
		t.Fatalf("expected invalid timeout error, got %v", err)
	}
}

func TestLoadServerConfigRejectsNegativeConcurrency(t *testing.T) {
	t.Setenv("ETA_MAX_CONCURRENCY", "-1")
	if _, err := LoadServerConfig(); err == nil || !strings.Contains(err.Error(), "ETA_MAX_CONCURRENCY") {
		t.Fatalf("expected concurrency error, got %v", err)
	}
}
