package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/flare/pkg/event"
	logpkg "github.com/rzbill/flare/pkg/log"
	"github.com/spf13/cobra"
)

// NewSendCommand constructs the `send` command: one event, one flush.
func NewSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a single event to a collector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoint, _ := cmd.Flags().GetString("endpoint")
			sdkKey, _ := cmd.Flags().GetString("sdk-key")
			name, _ := cmd.Flags().GetString("name")
			rawValue, _ := cmd.Flags().GetString("value")
			metaPairs, _ := cmd.Flags().GetStringArray("meta")
			userID, _ := cmd.Flags().GetString("user-id")
			dataDir, _ := cmd.Flags().GetString("data-dir")

			if name == "" {
				return fmt.Errorf("--name is required")
			}
			md, err := parseMeta(metaPairs)
			if err != nil {
				return err
			}
			var user *event.User
			if userID != "" {
				user = &event.User{UserID: userID}
			}

			pipeline, closePipeline, err := openPipeline(pipelineOptions{
				endpoint: endpoint,
				sdkKey:   sdkKey,
				dataDir:  dataDir,
				headless: true,
			}, logpkg.NewNopLogger(), nil)
			if err != nil {
				return err
			}

			pipeline.Log(event.New(name, user, parseValue(rawValue), md))
			pipeline.Flush()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := closePipeline(ctx); err != nil {
				return err
			}

			if spooled, _ := pipeline.SpoolStats(); spooled > 0 {
				if dataDir == "" {
					return fmt.Errorf("delivery failed and no --data-dir to keep the event")
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "SPOOLED")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	cmd.Flags().String("endpoint", endpointFromEnv(), "Collector base URL")
	cmd.Flags().String("sdk-key", sdkKeyFromEnv(), "Client key sent with each batch")
	cmd.Flags().String("name", "", "Event name")
	cmd.Flags().String("value", "", "Event value (JSON or raw string)")
	cmd.Flags().StringArray("meta", []string{}, "Event metadata key=value (repeat)")
	cmd.Flags().String("user-id", "", "Subject user ID")
	cmd.Flags().String("data-dir", "", "Directory for the durable spool (empty = in-memory)")
	return cmd
}
