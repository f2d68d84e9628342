package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nholden/tidewatch/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without touching storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("%s: OK (%d blob trigger(s), %d queue trigger(s), %d account(s))\n",
				cfg.Path(), len(cfg.BlobTriggers), len(cfg.QueueTriggers), len(cfg.Accounts))
			return nil
		},
	}
}
