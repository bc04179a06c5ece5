package client

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rzbill/flare/internal/archive"
	"github.com/rzbill/flare/pkg/id"
	logpkg "github.com/rzbill/flare/pkg/log"
	pebblestore "github.com/rzbill/flare/pkg/storage/pebble"
	"github.com/spf13/cobra"
)

// NewTailCommand constructs the `tail` command: it reads the collector
// archive directly from disk, so it works against a stopped collector.
func NewTailCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Read archived batches from a collector data directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			limit, _ := cmd.Flags().GetInt("limit")
			reverse, _ := cmd.Flags().GetBool("reverse")
			startHex, _ := cmd.Flags().GetString("start")
			follow, _ := cmd.Flags().GetBool("follow")

			if dataDir == "" {
				return fmt.Errorf("--data-dir is required")
			}
			var start id.ID
			if startHex != "" {
				parsed, err := id.ParseHex(startHex)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				start = parsed
			}

			db, err := pebblestore.Open(pebblestore.Options{
				DataDir: filepath.Join(dataDir, "store"),
				Fsync:   pebblestore.FsyncModeNever,
			})
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			a := archive.Open(db, logpkg.NewNopLogger(), nil)

			enc := json.NewEncoder(cmd.OutOrStdout())
			emit := func(entries []archive.Entry) error {
				for _, e := range entries {
					item := struct {
						ID         string          `json:"id"`
						ReceivedAt int64           `json:"receivedAt"`
						Events     int             `json:"events"`
						Batch      json.RawMessage `json:"batch"`
					}{e.ID.String(), e.ReceivedAt, e.Events, json.RawMessage(e.Payload)}
					if err := enc.Encode(item); err != nil {
						return err
					}
				}
				return nil
			}

			entries, _ := a.Read(archive.ReadOptions{Start: start, Limit: limit, Reverse: reverse})
			if err := emit(entries); err != nil {
				return err
			}
			if !follow || reverse {
				return nil
			}

			var cursor id.ID
			if len(entries) > 0 {
				cursor = entries[len(entries)-1].ID
			}
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				default:
				}
				a.WaitForAppend(5 * time.Second)
				entries, _ := a.Read(archive.ReadOptions{Start: cursor})
				for _, e := range entries {
					if e.ID == cursor {
						continue // Start is inclusive
					}
					if err := emit([]archive.Entry{e}); err != nil {
						return err
					}
					cursor = e.ID
				}
			}
		},
	}
	cmd.Flags().String("data-dir", "", "Collector data directory")
	cmd.Flags().Int("limit", 20, "Max entries to print (0 = all)")
	cmd.Flags().Bool("reverse", false, "Read newest-to-oldest")
	cmd.Flags().String("start", "", "Start entry ID (hex)")
	cmd.Flags().Bool("follow", false, "Keep reading as new batches arrive")
	return cmd
}
