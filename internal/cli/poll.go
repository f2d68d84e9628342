package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run one blob poll cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, nil)
			if err != nil {
				return err
			}
			return a.listener.Poll(ctx)
		},
	}
}
