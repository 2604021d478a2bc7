package app

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/failurelens")
	t.Setenv("RATE_LIMIT_ANALYSES_PER_MINUTE", "4")
	t.Setenv("ALERT_EMAIL_RECIPIENTS", "qa@example.com, eng@example.com")
	t.Setenv("STRIPE_PRICE_PRO", "price_pro")
	t.Setenv("ANTHROPIC_TIMEOUT_SECONDS", "30")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DatabaseURL != "postgres://u:p@localhost/failurelens" {
		t.Fatalf("database url: %q", cfg.DatabaseURL)
	}
	if cfg.AnalysesPerMinute != 4 || cfg.DefaultPerMinute != 120 {
		t.Fatalf("rate limits: %d/%d", cfg.AnalysesPerMinute, cfg.DefaultPerMinute)
	}
	if !reflect.DeepEqual(cfg.AlertRecipients, []string{"qa@example.com", "eng@example.com"}) {
		t.Fatalf("recipients: %#v", cfg.AlertRecipients)
	}
	if cfg.StripePriceIDs["pro"] != "price_pro" || len(cfg.StripePriceIDs) != 1 {
		t.Fatalf("price ids: %#v", cfg.StripePriceIDs)
	}
	if cfg.Anthropic.Timeout != 30*time.Second || cfg.Anthropic.MaxRetries != 3 {
		t.Fatalf("anthropic: %+v", cfg.Anthropic)
	}
	if cfg.PricingTTL != 10*time.Minute || cfg.Temporal.TaskQueue == "" {
		t.Fatalf("defaults: ttl=%v queue=%q", cfg.PricingTTL, cfg.Temporal.TaskQueue)
	}
}

func TestLoadConfigPostgresParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "lens")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "failurelens")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := "host=db port=5432 user=lens password=pw dbname=failurelens sslmode=disable"
	if cfg.DatabaseURL != want {
		t.Fatalf("dsn: got %q want %q", cfg.DatabaseURL, want)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "failurelens.yaml")
	body := "database_url: postgres://file\ncors_allowed_origins: https://app.example.com\nrate_limit_default_per_minute: 60\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RATE_LIMIT_DEFAULT_PER_MINUTE", "90")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DatabaseURL != "postgres://file" {
		t.Fatalf("file value not read: %q", cfg.DatabaseURL)
	}
	if cfg.DefaultPerMinute != 90 {
		t.Fatalf("env should override file: %d", cfg.DefaultPerMinute)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://app.example.com" {
		t.Fatalf("origins: %#v", cfg.CORSOrigins)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("explicit missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	err := Config{}.Validate(true)
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") || !strings.Contains(err.Error(), "SUPABASE_JWT_SECRET") {
		t.Fatalf("unexpected: %v", err)
	}
	if err := (Config{DatabaseURL: "x"}).Validate(false); err != nil {
		t.Fatalf("jobs mode should not need api secrets: %v", err)
	}
}
