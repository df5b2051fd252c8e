package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
)

// settleCommands defines "settle <window-id>": drive a settlement window's
// jobs to completion. Safe to re-run; already-succeeded jobs are skipped.
func settleCommands(b *engineInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle <window-id>",
		Short: "process a settlement window",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			summary, err := b.engine.ProcessWindow(context.Background(), args[0])
			if summary != nil {
				printSummary(summary)
			}
			if err != nil {
				exitWith(err)
				return
			}
			if summary.Failed > 0 {
				exitWith(apierror.NewAPIError(apierror.ErrInternalServer, "some window jobs failed", summary))
			}
		},
	}
	return cmd
}
