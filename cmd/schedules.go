package main

import (
	"context"

	"github.com/spf13/cobra"
)

// scheduleCommands defines "schedules run": resolve due schedules into jobs.
func scheduleCommands(b *engineInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "manage payment and payroll schedules",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "resolve due schedules into jobs",
		Run: func(cmd *cobra.Command, args []string) {
			summary, err := b.engine.RunDueSchedules(context.Background())
			if summary != nil {
				printSummary(summary)
			}
			exitWith(err)
		},
	}

	cmd.AddCommand(runCmd)
	return cmd
}
