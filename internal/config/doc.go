// Package config provides loading and environment overlay for Flare runtime
// configuration. It exposes a Default() baseline and helpers to construct
// the collector, pipeline and archive options.
//
// Example:
//
//	cfg := config.Default()
//	// Optionally load from file and overlay env vars
//	if fileCfg, err := config.Load("/etc/flare.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	// Pass cfg into collector.Options
//	col, _ := collector.Open(collector.Options{DataDir: config.DefaultDataDir(), Config: cfg})
//	defer col.Close()
package config
