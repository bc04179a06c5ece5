package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Collector.HTTPAddr != ":8787" {
		t.Fatalf("default http addr")
	}
	if cfg.Pipeline.MaxBufferSize != 50 {
		t.Fatalf("default buffer size")
	}
	if cfg.Pipeline.DedupWindowMs != 600_000 {
		t.Fatalf("default dedup window")
	}
	if cfg.Pipeline.SpoolMaxBatches != 100 || cfg.Pipeline.SpoolMaxEvents != 1000 {
		t.Fatalf("default spool caps")
	}
	if cfg.Archive.MaxBytes != 256<<20 {
		t.Fatalf("default archive bytes")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "flare.json")
	data := []byte(`{"collector":{"httpAddr":":9999"},"pipeline":{"endpoint":"https://ingest.example.com","maxBufferSize":25,"headless":true}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Collector.HTTPAddr != ":9999" {
		t.Fatalf("expected :9999")
	}
	if cfg.Pipeline.Endpoint != "https://ingest.example.com" {
		t.Fatalf("expected endpoint override")
	}
	if cfg.Pipeline.MaxBufferSize != 25 {
		t.Fatalf("expected 25")
	}
	if !cfg.Pipeline.Headless {
		t.Fatalf("expected headless")
	}
	// Untouched sections keep defaults.
	if cfg.Pipeline.SpoolMaxBatches != 100 {
		t.Fatalf("expected default spool batches, got %d", cfg.Pipeline.SpoolMaxBatches)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "flare.yaml")
	data := []byte("pipeline:\n  sdkKey: client-abc\n  flushIntervalMs: 2500\nlog:\n  level: debug\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.SDKKey != "client-abc" {
		t.Fatalf("expected sdk key")
	}
	if cfg.Pipeline.FlushIntervalMs != 2500 {
		t.Fatalf("expected 2500")
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("FLARE_ENDPOINT", "https://collector.internal:8787")
	os.Setenv("FLARE_SPOOL_MAX_BATCHES", "7")
	os.Setenv("FLARE_HEADLESS", "true")
	os.Setenv("FLARE_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Cleanup(func() {
		os.Unsetenv("FLARE_ENDPOINT")
		os.Unsetenv("FLARE_SPOOL_MAX_BATCHES")
		os.Unsetenv("FLARE_HEADLESS")
		os.Unsetenv("FLARE_ALLOWED_ORIGINS")
	})
	FromEnv(&cfg)
	if cfg.Pipeline.Endpoint != "https://collector.internal:8787" {
		t.Fatalf("env override endpoint")
	}
	if cfg.Pipeline.SpoolMaxBatches != 7 {
		t.Fatalf("env override spool batches")
	}
	if !cfg.Pipeline.Headless {
		t.Fatalf("env override headless")
	}
	if len(cfg.Collector.AllowedOrigins) != 2 || cfg.Collector.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("env override origins: %v", cfg.Collector.AllowedOrigins)
	}
}

func TestFromEnvIgnoresInvalid(t *testing.T) {
	cfg := Default()
	os.Setenv("FLARE_SPOOL_MAX_BATCHES", "not-a-number")
	t.Cleanup(func() { os.Unsetenv("FLARE_SPOOL_MAX_BATCHES") })
	FromEnv(&cfg)
	if cfg.Pipeline.SpoolMaxBatches != 100 {
		t.Fatalf("invalid env value should be ignored, got %d", cfg.Pipeline.SpoolMaxBatches)
	}
}
