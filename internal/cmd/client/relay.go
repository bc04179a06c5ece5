package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rzbill/flare/internal/relay"
	"github.com/rzbill/flare/pkg/lifecycle"
	logpkg "github.com/rzbill/flare/pkg/log"
	"github.com/spf13/cobra"
)

// NewRelayCommand constructs the `relay` command: it pumps NDJSON events
// from stdin or a file into a collector until the input drains.
func NewRelayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Forward NDJSON events from stdin or a file to a collector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoint, _ := cmd.Flags().GetString("endpoint")
			sdkKey, _ := cmd.Flags().GetString("sdk-key")
			input, _ := cmd.Flags().GetString("input")
			filter, _ := cmd.Flags().GetString("filter")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			flushMs, _ := cmd.Flags().GetInt64("flush-interval-ms")
			maxBuf, _ := cmd.Flags().GetInt("max-buffer")
			logLevel, _ := cmd.Flags().GetString("log-level")

			in := cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			lg, err := logpkg.ApplyConfig(&logpkg.Config{Level: logLevel, Format: "text", Output: "stderr"})
			if err != nil {
				lg = logpkg.NewNopLogger()
			}

			// SIGTERM during the pump triggers a terminating flush and
			// spool persist inside the pipeline.
			src := lifecycle.NewOSSource()
			defer src.Close()

			pipeline, closePipeline, err := openPipeline(pipelineOptions{
				endpoint: endpoint,
				sdkKey:   sdkKey,
				dataDir:  dataDir,
				flushMs:  flushMs,
				maxBuf:   maxBuf,
			}, lg, src)
			if err != nil {
				return err
			}

			r, err := relay.New(pipeline, relay.Options{Filter: filter, Logger: lg})
			if err != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = closePipeline(ctx)
				return err
			}

			st, runErr := r.Run(cmd.Context(), in)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			closeErr := closePipeline(ctx)

			spooled, _ := pipeline.SpoolStats()
			out := struct {
				Lines     int `json:"lines"`
				Forwarded int `json:"forwarded"`
				Filtered  int `json:"filtered"`
				Malformed int `json:"malformed"`
				Spooled   int `json:"spooled"`
			}{st.Lines, st.Forwarded, st.Filtered, st.Malformed, spooled}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(out); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}
			if spooled > 0 && dataDir == "" {
				return fmt.Errorf("%d batches undelivered and no --data-dir to keep them", spooled)
			}
			return closeErr
		},
	}
	cmd.Flags().String("endpoint", endpointFromEnv(), "Collector base URL")
	cmd.Flags().String("sdk-key", sdkKeyFromEnv(), "Client key sent with each batch")
	cmd.Flags().String("input", "-", "Input file path, - for stdin")
	cmd.Flags().String("filter", "", "CEL filter over name/value/metadata/user_id/ts_ms/now_ms")
	cmd.Flags().String("data-dir", "", "Directory for the durable spool (empty = in-memory)")
	cmd.Flags().Int64("flush-interval-ms", 0, "Flush interval override in ms (0 = default)")
	cmd.Flags().Int("max-buffer", 0, "Buffered events before a forced flush (0 = default)")
	cmd.Flags().String("log-level", "warn", "Log level: debug|info|warn|error")
	return cmd
}
