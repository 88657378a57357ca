package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	if cfg.Verification.VerifyAfter() != 24*time.Hour {
		t.Errorf("VerifyAfter = %v, want 24h", cfg.Verification.VerifyAfter())
	}
	if cfg.Verification.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", cfg.Verification.PollInterval)
	}
	if cfg.Storage.Backend != "file" || cfg.PriceFeed.Source != "demo" {
		t.Errorf("backend/feed = %s/%s, want file/demo", cfg.Storage.Backend, cfg.PriceFeed.Source)
	}
	if cfg.Storage.FilePath != "data/signals.json" {
		t.Errorf("FilePath = %q", cfg.Storage.FilePath)
	}
	if cfg.API.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.API.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestNew_FromEnv(t *testing.T) {
	t.Setenv("VERIFY_AFTER_HOURS", "1.5")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("STORAGE_BACKEND", "Postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/fx")
	t.Setenv("PRICE_PAIRS", "USD/JPY, GBP/USD ,")
	t.Setenv("NOTIFY_LOG", "false")
	t.Setenv("VERIFY_BATCH_SIZE", "not-a-number")

	cfg := New()

	if cfg.Verification.VerifyAfter() != 90*time.Minute {
		t.Errorf("VerifyAfter = %v, want 1h30m", cfg.Verification.VerifyAfter())
	}
	if cfg.Verification.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v", cfg.Verification.PollInterval)
	}
	if cfg.Storage.Backend != "postgres" {
		t.Errorf("Backend = %q, want lowercased postgres", cfg.Storage.Backend)
	}
	if strings.Join(cfg.PriceFeed.Pairs, "|") != "USD/JPY|GBP/USD" {
		t.Errorf("Pairs = %v", cfg.PriceFeed.Pairs)
	}
	if cfg.Notify.Log {
		t.Error("NOTIFY_LOG=false not applied")
	}
	if cfg.Verification.BatchSize != 0 {
		t.Errorf("unparsable int should fall back to default, got %d", cfg.Verification.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }, "Backend"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "PostgresDSN"},
		{"redis without url", func(c *Config) { c.Storage.Backend = "redis" }, "RedisURL"},
		{"file without path", func(c *Config) { c.Storage.FilePath = "" }, "FilePath"},
		{"unknown feed", func(c *Config) { c.PriceFeed.Source = "bloomberg" }, "Source"},
		{"stream without url", func(c *Config) { c.PriceFeed.Source = "stream" }, "StreamURL"},
		{"alphavantage without key", func(c *Config) { c.PriceFeed.Source = "alphavantage" }, "APIKey"},
		{"zero verify delay", func(c *Config) { c.Verification.VerifyAfterHours = 0 }, "VerifyAfterHours"},
		{"bad log level", func(c *Config) { c.App.LogLevel = "loud" }, "LogLevel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("HTTP_ADDR=:9999\nREPORT_DIR=out\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("HTTP_ADDR")
		os.Unsetenv("REPORT_DIR")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.Addr != ":9999" || cfg.App.ReportDir != "out" {
		t.Errorf("env file not applied: addr %q report dir %q", cfg.API.Addr, cfg.App.ReportDir)
	}
}

func TestLoad_MissingEnvFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}
