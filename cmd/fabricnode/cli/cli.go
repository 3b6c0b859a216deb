package cli

import (
	"github.com/spf13/cobra"
)

// RunFunc starts the node runtime for the given optional hex node_id
// (empty when the positional argument was omitted) and blocks until
// shutdown.
type RunFunc func(nodeIDHex string) error

// NewCLI builds the root command. The interactive shell is a thin external
// collaborator, so the surface here is intentionally minimal: a single
// positional hex node_id argument.
func NewCLI(run RunFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fabricnode [node_id]",
		Short: "fabricnode runs one peer of the ad-hoc compute fabric.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var nodeIDHex string
			if len(args) == 1 {
				nodeIDHex = args[0]
			}
			return run(nodeIDHex)
		},
	}
	return rootCmd
}
