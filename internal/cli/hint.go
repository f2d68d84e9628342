package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newHintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hint <account> <container> <blob>",
		Short: "Evaluate triggers for one specific blob out of band",
		Long:  "Hint runs the same matching and freshness logic as a poll, but for a single named blob. Useful when a push notification reports a change before the next scheduled poll.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx, nil)
			if err != nil {
				return err
			}

			acct, ok := a.accounts[args[0]]
			if !ok {
				return fmt.Errorf("unknown account %q", args[0])
			}
			return a.listener.InvokeTriggersForBlob(ctx, acct.ID(), args[1], args[2])
		},
	}
}
