package main

import (
	"context"

	"github.com/spf13/cobra"
)

// jobCommands defines "jobs recalculate <id>": lock-guarded recalculation of
// a payroll job. A changed calculation supersedes the job with a corrected
// one and dead-letters the original.
func jobCommands(b *engineInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "operate on individual jobs",
	}

	recalculateCmd := &cobra.Command{
		Use:   "recalculate <job-id>",
		Short: "recompute a payroll job's calculation from its stored snapshot",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job, err := b.engine.RecalculateJob(context.Background(), args[0])
			if err != nil {
				exitWith(err)
				return
			}
			printSummary(job)
		},
	}

	cmd.AddCommand(recalculateCmd)
	return cmd
}
