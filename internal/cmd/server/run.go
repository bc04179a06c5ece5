package serverrun

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rzbill/flare/internal/collector"
	cfgpkg "github.com/rzbill/flare/internal/config"
	httpserver "github.com/rzbill/flare/internal/server/http"
	logpkg "github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/metrics"
	pebblestore "github.com/rzbill/flare/pkg/storage/pebble"
)

func getenvDefault(key, def string) string {
	if v := func() string { return getenv(key) }(); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing; replaced by os.Getenv at build time
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Metrics       *metrics.Metrics
}

// Run starts the collector HTTP server and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context
	// or if signal delivery needs to be observed here. We layer a
	// local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.HTTPAddr == "" {
		opts.HTTPAddr = opts.Config.Collector.HTTPAddr
	}
	storeDir := filepath.Join(opts.DataDir, "store")

	// Build process-wide logger using env/ApplyConfig; defaults: level=info, format=text
	logCfg := opts.Config.Log
	if logCfg.Level == "" {
		logCfg.Level = getenvDefault("FLARE_LOG_LEVEL", "info")
	}
	if logCfg.Format == "" {
		logCfg.Format = getenvDefault("FLARE_LOG_FORMAT", "text")
	}
	procLogger, err := logpkg.ApplyConfig(&logCfg)
	if err != nil {
		// Fallback to a sane default
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(logCfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	col, err := collector.Open(collector.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
		Metrics:       m,
	})
	if err != nil {
		return err
	}
	defer col.Close()

	procLogger.Info("Starting flare collector",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", storeDir),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
		logpkg.Bool("archive", opts.Config.Archive.Enabled),
	)

	hsrv := httpserver.New(col, procLogger, httpserver.Options{
		AllowedOrigins: opts.Config.Collector.AllowedOrigins,
		FailEveryN:     opts.Config.Collector.FailEveryN,
		FailStatus:     opts.Config.Collector.FailStatus,
		MetricsHandler: promhttp.Handler(),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			log.Printf("http error: %v", err)
		}
	}()

	<-sctx.Done()
	// Shut the server down before closing the collector to avoid races.
	hsrv.Close()
	wg.Wait()
	return nil
}
