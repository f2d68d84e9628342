// Package cli wires configuration, secrets, storage accounts, and the
// listener into the tidewatch command-line surface.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nholden/tidewatch/internal/plugin"
)

var (
	configPath   string
	secretsPath  string
	identityPath string
)

// extensions holds compiled-in plugin extensions. Register more in an
// init function at composition time.
var extensions plugin.Registry

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tidewatch",
		Short: "Storage-triggered job watcher",
		Long:  "Tidewatch watches blob containers and message queues and runs the jobs bound to them, skipping work whose outputs are already fresh.",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "tidewatch.toml", "path to tidewatch.toml")
	root.PersistentFlags().StringVar(&secretsPath, "secrets", "", "path to secrets file (.toml or .age)")
	root.PersistentFlags().StringVar(&identityPath, "identity", "", "path to age identity file for encrypted secrets")

	root.AddCommand(
		newValidateCmd(),
		newPollCmd(),
		newWatchCmd(),
		newHintCmd(),
	)

	return root
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
