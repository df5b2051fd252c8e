package main

import (
	"context"

	"github.com/spf13/cobra"
)

// recoverCommands defines "recover stuck" and "recover failed", the manual
// triggers for the recovery passes the background poller runs on a timer.
func recoverCommands(b *engineInstance) *cobra.Command {
	var limit int
	var jobType string

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "recover stuck or failed jobs",
	}
	cmd.PersistentFlags().IntVar(&limit, "limit", 0, "maximum jobs to touch in one invocation")
	cmd.PersistentFlags().StringVar(&jobType, "type", "", "restrict to payment or payroll jobs")

	stuckCmd := &cobra.Command{
		Use:   "stuck",
		Short: "reset jobs stuck in processing beyond the threshold",
		Run: func(cmd *cobra.Command, args []string) {
			summary, err := b.engine.RecoverStuckJobs(context.Background(), jobType, limit)
			if summary != nil {
				printSummary(summary)
			}
			exitWith(err)
		},
	}

	failedCmd := &cobra.Command{
		Use:   "failed",
		Short: "re-enqueue failed jobs within the retry budget",
		Run: func(cmd *cobra.Command, args []string) {
			summary, err := b.engine.RetryFailedJobs(context.Background(), jobType, limit)
			if summary != nil {
				printSummary(summary)
			}
			exitWith(err)
		},
	}

	cmd.AddCommand(stuckCmd)
	cmd.AddCommand(failedCmd)
	return cmd
}
