package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

// reconcileCommands defines the reconciliation commands. Without --auto-fix,
// unresolved discrepancies make the command exit non-zero so cron jobs and
// alerting pick them up.
func reconcileCommands(b *engineInstance) *cobra.Command {
	var autoFix bool
	var businessID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "reconcile stored balances against recalculation and ledger",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			if businessID != "" {
				discrepancy, err := b.engine.ReconcileBalance(ctx, businessID, autoFix)
				if err != nil {
					exitWith(err)
					return
				}
				summary := &model.ReconciliationSummary{Processed: 1}
				if discrepancy != nil {
					summary.Issues = 1
					if autoFix {
						summary.Fixed = 1
					}
				}
				printSummary(summary)
				if summary.Issues > summary.Fixed {
					exitWith(apierror.NewAPIError(apierror.ErrDiscrepancyDetected, "unresolved discrepancies found", summary))
				}
				return
			}

			summary, err := b.engine.ReconcileAll(ctx, autoFix)
			if summary != nil {
				printSummary(summary)
			}
			if err != nil {
				exitWith(err)
				return
			}
			if summary.Issues > summary.Fixed {
				exitWith(apierror.NewAPIError(apierror.ErrDiscrepancyDetected, "unresolved discrepancies found", summary))
			}
		},
	}
	cmd.Flags().BoolVar(&autoFix, "auto-fix", false, "overwrite stored balances to the calculated value, with an audit trail")
	cmd.Flags().StringVar(&businessID, "business", "", "reconcile a single business")

	payrollCmd := &cobra.Command{
		Use:   "payroll-integrity <business-id>",
		Short: "validate payroll job calculations for the current pay period",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			now := time.Now().UTC()
			period := model.PayPeriod{
				Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
			}
			period.End = period.Start.AddDate(0, 1, -1)

			summary, err := b.engine.ReconcilePayrollIntegrity(context.Background(), args[0], period, autoFix)
			if summary != nil {
				printSummary(summary)
			}
			if err != nil {
				exitWith(err)
				return
			}
			if summary.Issues > summary.Fixed {
				exitWith(apierror.NewAPIError(apierror.ErrDiscrepancyDetected, "unresolved payroll integrity issues", summary))
			}
		},
	}
	payrollCmd.Flags().BoolVar(&autoFix, "auto-fix", false, "correct negative nets and fail duplicate jobs")

	cmd.AddCommand(payrollCmd)
	return cmd
}
