package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the flare client.
// It registers the relay, send, spool, and tail command groups.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "flare",
		Short: "flare client commands",
	}
	root.AddCommand(NewRelayCommand())
	root.AddCommand(NewSendCommand())
	root.AddCommand(NewSpoolCommand())
	root.AddCommand(NewTailCommand())
	return root
}
