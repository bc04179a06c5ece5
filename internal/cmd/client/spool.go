package client

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rzbill/flare/pkg/logger"
	pebblestore "github.com/rzbill/flare/pkg/storage/pebble"
	"github.com/rzbill/flare/pkg/transport"
	"github.com/spf13/cobra"
)

// NewSpoolCommand constructs the `spool` command group and subcommands.
func NewSpoolCommand() *cobra.Command {
	spoolCmd := &cobra.Command{Use: "spool", Short: "Inspect and replay the persisted failure spool"}
	spoolCmd.AddCommand(
		newSpoolListCommand(),
		newSpoolReplayCommand(),
		newSpoolClearCommand(),
	)
	return spoolCmd
}

// openSpoolStore opens the Pebble store a pipeline run persisted into.
func openSpoolStore(dataDir string) (*pebblestore.KV, func() error, error) {
	if dataDir == "" {
		return nil, nil, fmt.Errorf("--data-dir is required")
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: filepath.Join(dataDir, "store"),
		Fsync:   pebblestore.FsyncModeAlways,
	})
	if err != nil {
		return nil, nil, err
	}
	return pebblestore.NewKV(db), db.Close, nil
}

// readSpool loads and decodes the persisted spool blob. A missing key is an
// empty spool, not an error.
func readSpool(kv *pebblestore.KV) ([]logger.Batch, error) {
	raw, ok := kv.Get(logger.SpoolKey)
	if !ok || raw == "" {
		return nil, nil
	}
	var batches []logger.Batch
	if err := json.Unmarshal([]byte(raw), &batches); err != nil {
		return nil, fmt.Errorf("corrupt spool blob: %w", err)
	}
	return batches, nil
}

func newSpoolListCommand() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted failed batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			full, _ := cmd.Flags().GetBool("full")

			kv, closeDB, err := openSpoolStore(dataDir)
			if err != nil {
				return err
			}
			defer func() { _ = closeDB() }()

			batches, err := readSpool(kv)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if full {
				return enc.Encode(batches)
			}

			type entry struct {
				FailedAt int64 `json:"failedAt"`
				Events   int   `json:"events"`
			}
			var out struct {
				Batches int     `json:"batches"`
				Events  int     `json:"events"`
				Entries []entry `json:"entries"`
			}
			out.Batches = len(batches)
			out.Entries = make([]entry, 0, len(batches))
			for _, b := range batches {
				out.Events += len(b.Events)
				out.Entries = append(out.Entries, entry{FailedAt: b.Time, Events: len(b.Events)})
			}
			return enc.Encode(out)
		},
	}
	listCmd.Flags().String("data-dir", "", "Directory a pipeline run persisted into")
	listCmd.Flags().Bool("full", false, "Print complete batches instead of a summary")
	return listCmd
}

func newSpoolReplayCommand() *cobra.Command {
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Push persisted failed batches through a collector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			endpoint, _ := cmd.Flags().GetString("endpoint")
			sdkKey, _ := cmd.Flags().GetString("sdk-key")

			kv, closeDB, err := openSpoolStore(dataDir)
			if err != nil {
				return err
			}
			defer func() { _ = closeDB() }()

			batches, err := readSpool(kv)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "spool empty")
				return nil
			}

			tr := transport.NewHTTP(transport.HTTPOptions{Endpoint: endpoint, SDKKey: sdkKey})
			var remaining []logger.Batch
			delivered := 0
			for _, b := range batches {
				payload, err := json.Marshal(b)
				if err != nil {
					continue // undecodable batch is dropped
				}
				res, err := tr.Post(cmd.Context(), payload, transport.PostOptions{Policy: transport.DefaultRetryPolicy()})
				if err != nil || !res.OK {
					remaining = append(remaining, b)
					continue
				}
				delivered++
			}

			if len(remaining) == 0 {
				if err := kv.Remove(logger.SpoolKey); err != nil {
					return err
				}
			} else {
				blob, err := json.Marshal(remaining)
				if err != nil {
					return err
				}
				if err := kv.Set(logger.SpoolKey, string(blob)); err != nil {
					return err
				}
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "delivered %d of %d batches, %d remaining\n",
				delivered, len(batches), len(remaining))
			if len(remaining) > 0 {
				return fmt.Errorf("%d batches still undelivered", len(remaining))
			}
			return nil
		},
	}
	replayCmd.Flags().String("data-dir", "", "Directory a pipeline run persisted into")
	replayCmd.Flags().String("endpoint", endpointFromEnv(), "Collector base URL")
	replayCmd.Flags().String("sdk-key", sdkKeyFromEnv(), "Client key sent with each batch")
	return replayCmd
}

func newSpoolClearCommand() *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop all persisted failed batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return fmt.Errorf("use --confirm to drop the persisted spool")
			}

			kv, closeDB, err := openSpoolStore(dataDir)
			if err != nil {
				return err
			}
			defer func() { _ = closeDB() }()

			if err := kv.Remove(logger.SpoolKey); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	clearCmd.Flags().String("data-dir", "", "Directory a pipeline run persisted into")
	clearCmd.Flags().Bool("confirm", false, "Confirm the clear operation")
	return clearCmd
}
