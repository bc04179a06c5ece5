package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays FLARE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FLARE_HTTP_ADDR"); v != "" {
		cfg.Collector.HTTPAddr = v
	}
	if v := os.Getenv("FLARE_ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		cfg.Collector.AllowedOrigins = nil
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Collector.AllowedOrigins = append(cfg.Collector.AllowedOrigins, p)
			}
		}
	}
	if v := os.Getenv("FLARE_ENDPOINT"); v != "" {
		cfg.Pipeline.Endpoint = v
	}
	if v := os.Getenv("FLARE_SDK_KEY"); v != "" {
		cfg.Pipeline.SDKKey = v
	}
	if v := os.Getenv("FLARE_MAX_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxBufferSize = n
		}
	}
	if v := os.Getenv("FLARE_FLUSH_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Pipeline.FlushIntervalMs = n
		}
	}
	if v := os.Getenv("FLARE_DEDUP_WINDOW_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Pipeline.DedupWindowMs = n
		}
	}
	if v := os.Getenv("FLARE_SPOOL_MAX_BATCHES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.SpoolMaxBatches = n
		}
	}
	if v := os.Getenv("FLARE_SPOOL_MAX_EVENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.SpoolMaxEvents = n
		}
	}
	if v := os.Getenv("FLARE_SPOOL_MAX_AGE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Pipeline.SpoolMaxAgeMs = n
		}
	}
	if v := os.Getenv("FLARE_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Pipeline.Headless = b
		}
	}
	if v := os.Getenv("FLARE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("FLARE_FSYNC"); v != "" {
		cfg.Storage.Fsync = v
	}
	if v := os.Getenv("FLARE_ARCHIVE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Archive.Enabled = b
		}
	}
	if v := os.Getenv("FLARE_ARCHIVE_MAX_AGE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Archive.MaxAgeMs = n
		}
	}
	if v := os.Getenv("FLARE_ARCHIVE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Archive.MaxBytes = n
		}
	}
	if v := os.Getenv("FLARE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FLARE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
