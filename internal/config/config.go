package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/flare/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Collector CollectorConfig `json:"collector" yaml:"collector"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Archive   ArchiveConfig   `json:"archive" yaml:"archive"`
	Log       log.Config      `json:"log" yaml:"log"`
}

// CollectorConfig tunes the ingest server.
type CollectorConfig struct {
	HTTPAddr       string   `json:"httpAddr" yaml:"httpAddr"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
	// FailStatus, when non-zero, makes the collector reject every Nth ingest
	// with this status. Lets an operator exercise client retry/spool paths.
	FailStatus int `json:"failStatus" yaml:"failStatus"`
	FailEveryN int `json:"failEveryN" yaml:"failEveryN"`
}

// PipelineConfig tunes the outbound event pipeline used by relay and send.
type PipelineConfig struct {
	Endpoint            string `json:"endpoint" yaml:"endpoint"`
	SDKKey              string `json:"sdkKey" yaml:"sdkKey"`
	MaxBufferSize       int    `json:"maxBufferSize" yaml:"maxBufferSize"`
	FlushIntervalMs     int64  `json:"flushIntervalMs" yaml:"flushIntervalMs"`
	DedupWindowMs       int64  `json:"dedupWindowMs" yaml:"dedupWindowMs"`
	SpoolMaxBatches     int    `json:"spoolMaxBatches" yaml:"spoolMaxBatches"`
	SpoolMaxEvents      int    `json:"spoolMaxEvents" yaml:"spoolMaxEvents"`
	SpoolMaxAgeMs       int64  `json:"spoolMaxAgeMs" yaml:"spoolMaxAgeMs"`
	PersistCeilingBytes int    `json:"persistCeilingBytes" yaml:"persistCeilingBytes"`
	ReplayForgetBytes   int    `json:"replayForgetBytes" yaml:"replayForgetBytes"`
	Headless            bool   `json:"headless" yaml:"headless"`
}

// StorageConfig tunes the durable substrate.
type StorageConfig struct {
	DataDir         string `json:"dataDir" yaml:"dataDir"`
	Fsync           string `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs int64  `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
}

// ArchiveConfig tunes the collector-side event archive.
type ArchiveConfig struct {
	Enabled         bool  `json:"enabled" yaml:"enabled"`
	MaxAgeMs        int64 `json:"maxAgeMs" yaml:"maxAgeMs"`
	MaxBytes        int64 `json:"maxBytes" yaml:"maxBytes"`
	SweepIntervalMs int64 `json:"sweepIntervalMs" yaml:"sweepIntervalMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Collector: CollectorConfig{
			HTTPAddr: ":8787",
		},
		Pipeline: PipelineConfig{
			Endpoint:            "http://localhost:8787",
			MaxBufferSize:       50,
			FlushIntervalMs:     10_000,
			DedupWindowMs:       600_000,
			SpoolMaxBatches:     100,
			SpoolMaxEvents:      1000,
			SpoolMaxAgeMs:       5 * 24 * 60 * 60 * 1000,
			PersistCeilingBytes: 1 << 20,
			ReplayForgetBytes:   1 << 20,
		},
		Storage: StorageConfig{
			Fsync:           "interval",
			FsyncIntervalMs: 5,
		},
		Archive: ArchiveConfig{
			Enabled:         true,
			MaxAgeMs:        7 * 24 * 60 * 60 * 1000,
			MaxBytes:        256 << 20,
			SweepIntervalMs: 60_000,
		},
		Log: log.Config{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
