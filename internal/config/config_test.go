package config_test

import (
	"os"
	"testing"

	"github.com/fairyhunter13/semantic-orchestrator/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "PORT", "KAFKA_BROKERS", "REDIS_URL", "DATABASE_URL"} {
		_ = os.Unsetenv(k)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.AppEnv != "dev" || !cfg.IsDev() {
		t.Fatalf("expected dev environment by default, got %q", cfg.AppEnv)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:19092" {
		t.Fatalf("unexpected kafka brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.MaxConcurrentJobs("collection") != 8 {
		t.Fatalf("unexpected collection concurrency: %d", cfg.MaxConcurrentJobs("collection"))
	}
	if cfg.MaxConcurrentJobs("unknown") != 4 {
		t.Fatalf("unexpected default concurrency: %d", cfg.MaxConcurrentJobs("unknown"))
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("MAX_CONCURRENT_JOBS_DATASET", "16")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProd() {
		t.Fatalf("expected prod environment")
	}
	if cfg.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Port)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("unexpected kafka brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.MaxConcurrentJobs("dataset") != 16 {
		t.Fatalf("unexpected dataset concurrency: %d", cfg.MaxConcurrentJobs("dataset"))
	}
}

func TestRateLimitPerMin(t *testing.T) {
	cfg := config.Config{
		RateLimitDefaultPerMin: 60,
		RateLimitCreatePerMin:  20,
		RateLimitTriggerPerMin: 10,
		RateLimitReadPerMin:    120,
	}
	cases := map[string]int{"create": 20, "trigger": 10, "read": 120, "stats": 60}
	for class, want := range cases {
		if got := cfg.RateLimitPerMin(class); got != want {
			t.Fatalf("class %q: got %d want %d", class, got, want)
		}
	}
}
