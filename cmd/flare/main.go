package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/rzbill/flare/internal/cmd/client"
	serverrun "github.com/rzbill/flare/internal/cmd/server"
	cfgpkg "github.com/rzbill/flare/internal/config"
	logpkg "github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/metadata"
	pebblestore "github.com/rzbill/flare/pkg/storage/pebble"
	"github.com/spf13/cobra"
)

func main() {
	// initialize logger for CLI
	// Respect FLARE_LOG_LEVEL for both CLI and collector start output
	level := os.Getenv("FLARE_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "flare",
		Short: "flare event pipeline CLI",
		Long:  "flare batches, delivers, and archives telemetry events. This CLI manages the dev collector and feeds pipelines from a terminal.",
	}

	// collector start
	collectorCmd := &cobra.Command{Use: "collector", Short: "Collector commands"}
	collectorStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the flare dev collector (HTTP ingest + archive)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			failStatus, _ := cmd.Flags().GetInt("fail-status")
			failEveryN, _ := cmd.Flags().GetInt("fail-every")
			noArchive, _ := cmd.Flags().GetBool("no-archive")

			mode, err := pebblestore.ParseFsyncMode(fsyncMode)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}
			if failStatus > 0 {
				cfg.Collector.FailStatus = failStatus
			}
			if failEveryN > 0 {
				cfg.Collector.FailEveryN = failEveryN
			}
			if noArchive {
				cfg.Archive.Enabled = false
			}
			if httpAddr != "" {
				cfg.Collector.HTTPAddr = httpAddr
			}

			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				HTTPAddr:      cfg.Collector.HTTPAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
			}); err != nil {
				return fmt.Errorf("collector error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	collectorStartCmd.Flags().String("config", "", "Config file path (JSON or YAML)")
	collectorStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	collectorStartCmd.Flags().String("http", "", "HTTP listen address (default :8787)")
	collectorStartCmd.Flags().String("fsync", "interval", "Fsync mode: always|interval|never")
	collectorStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	collectorStartCmd.Flags().String("log-level", os.Getenv("FLARE_LOG_LEVEL"), "Log level: debug|info|warn|error")
	collectorStartCmd.Flags().String("log-format", os.Getenv("FLARE_LOG_FORMAT"), "Log format: text|json (default text)")
	collectorStartCmd.Flags().Int("fail-status", 0, "Failure injection: status code to return on injected failures")
	collectorStartCmd.Flags().Int("fail-every", 0, "Failure injection: fail every Nth ingest (0 = off)")
	collectorStartCmd.Flags().Bool("no-archive", false, "Accept batches without archiving them")
	collectorCmd.AddCommand(collectorStartCmd)
	rootCmd.AddCommand(collectorCmd)

	// pipeline commands (relay, send, spool, tail)
	rootCmd.AddCommand(clientcmd.NewRelayCommand())
	rootCmd.AddCommand(clientcmd.NewSendCommand())
	rootCmd.AddCommand(clientcmd.NewSpoolCommand())
	rootCmd.AddCommand(clientcmd.NewTailCommand())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the flare version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("flare", metadata.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
