package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	d := Defaults()

	if d.Match.Threshold != 0.6 {
		t.Errorf("default threshold = %v, want 0.6", d.Match.Threshold)
	}
	if d.Embedding.Dim != 512 {
		t.Errorf("default dim = %d, want 512", d.Embedding.Dim)
	}
	if d.Sync.MaxAttempts != 3 {
		t.Errorf("default max attempts = %d, want 3", d.Sync.MaxAttempts)
	}
	if d.Sync.RetryDelay != 2*time.Second {
		t.Errorf("default retry delay = %v, want 2s", d.Sync.RetryDelay)
	}
	if d.Sync.AttemptTimeout != 10*time.Second {
		t.Errorf("default attempt timeout = %v, want 10s", d.Sync.AttemptTimeout)
	}
	if d.Match.Strategy != "linear" {
		t.Errorf("default strategy = %q, want linear", d.Match.Strategy)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.75")
	t.Setenv("SYNC_MAX_ATTEMPTS", "5")
	t.Setenv("SYNC_RETRY_DELAY", "500ms")
	t.Setenv("MATCH_STRATEGY", "hnsw")
	t.Setenv("SYNC_SCHEDULE", "")
	t.Setenv("DATABASE_URL", "sqlite://faces.db")

	cfg := Load()

	if cfg.Match.Threshold != 0.75 {
		t.Errorf("threshold = %v, want 0.75", cfg.Match.Threshold)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.RetryDelay != 500*time.Millisecond {
		t.Errorf("retry delay = %v, want 500ms", cfg.Sync.RetryDelay)
	}
	if cfg.Match.Strategy != "hnsw" {
		t.Errorf("strategy = %q, want hnsw", cfg.Match.Strategy)
	}
	if cfg.Sync.Schedule != "" {
		t.Errorf("schedule = %q, want empty when explicitly cleared", cfg.Sync.Schedule)
	}
	if cfg.Database.URL != "sqlite://faces.db" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "-3")
	t.Setenv("SYNC_ATTEMPT_TIMEOUT", "soon")
	t.Setenv("MATCH_THRESHOLD", "high")

	cfg := Load()

	if cfg.Embedding.Dim != 512 {
		t.Errorf("dim = %d, want default 512", cfg.Embedding.Dim)
	}
	if cfg.Sync.AttemptTimeout != 10*time.Second {
		t.Errorf("attempt timeout = %v, want default 10s", cfg.Sync.AttemptTimeout)
	}
	if cfg.Match.Threshold != 0.6 {
		t.Errorf("threshold = %v, want default 0.6", cfg.Match.Threshold)
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	cfg.Match.Threshold = 2
	cfg.Sync.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted threshold 2 and zero attempts")
	}
}

func TestLoadAllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[0] != "https://a.example" || cfg.Web.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("allowed origins = %q", cfg.Web.AllowedOrigins)
	}
}
