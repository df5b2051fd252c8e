package main

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
)

// snapshotCommands defines "snapshots create [--date YYYY-MM-DD]".
func snapshotCommands(b *engineInstance) *cobra.Command {
	var dateStr string

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "manage cached balance snapshots",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "capture ledger-derived balances for every business",
		Run: func(cmd *cobra.Command, args []string) {
			date := time.Now().UTC()
			if dateStr != "" {
				parsed, err := time.Parse("2006-01-02", dateStr)
				if err != nil {
					log.Fatalf("invalid --date %q, expected YYYY-MM-DD", dateStr)
				}
				date = parsed
			}

			summary, err := b.engine.CreateBalanceSnapshots(context.Background(), date)
			if summary != nil {
				printSummary(summary)
			}
			if err != nil {
				exitWith(err)
				return
			}
			if summary.Failed > 0 {
				exitWith(apierror.NewAPIError(apierror.ErrInternalServer, "some snapshots failed", summary))
			}
		},
	}
	createCmd.Flags().StringVar(&dateStr, "date", "", "snapshot date, defaults to today")

	cmd.AddCommand(createCmd)
	return cmd
}
