/*
Copyright 2024 Sibabalw Payments Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package escrow

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sibabalw/payments-app-sub003/config"
	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

var reconTracer = otel.Tracer("payments.reconciliation")

// ReconcileBalance compares a business's stored balance against the
// authoritative recalculation and the ledger-derived balance. A difference
// beyond the configured tolerance records a discrepancy; with autoFix the
// stored balance is overwritten to the calculated value and an audit
// correction row is written. Nothing is ever fixed silently.
func (l *Engine) ReconcileBalance(ctx context.Context, businessID string, autoFix bool) (*model.ReconciliationDiscrepancy, error) {
	ctx, span := reconTracer.Start(ctx, "Reconciling balance",
		trace.WithAttributes(attribute.String("business.id", businessID), attribute.Bool("auto_fix", autoFix)))
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	tolerance := int64(cfg.Engine.ReconciliationToleranceMU)

	var stored int64
	storedRow, err := l.datasource.GetStoredBalance(ctx, businessID)
	if err == nil {
		stored = storedRow.BalanceMinorUnits
	} else if !apierror.Is(err, apierror.ErrNotFound) {
		return nil, err
	}

	calculated, err := l.RecalculateBalance(ctx, businessID)
	if err != nil {
		return nil, err
	}
	ledgerBalance, err := l.datasource.GetLedgerBalance(ctx, businessID, model.AccountTypeEscrow)
	if err != nil {
		return nil, err
	}

	difference := stored - calculated
	if difference < 0 {
		difference = -difference
	}
	if difference <= tolerance {
		return nil, nil
	}

	discrepancy := &model.ReconciliationDiscrepancy{
		BusinessID:           businessID,
		StoredMinorUnits:     stored,
		CalculatedMinorUnits: calculated,
		LedgerMinorUnits:     ledgerBalance,
		DifferenceMinorUnits: stored - calculated,
		Status:               model.DiscrepancyStatusOpen,
		AutoFixed:            autoFix,
	}
	if autoFix {
		discrepancy.Status = model.DiscrepancyStatusResolved
	}
	discrepancy, err = l.datasource.RecordDiscrepancy(ctx, discrepancy)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.AddEvent("Discrepancy recorded",
		trace.WithAttributes(attribute.String("discrepancy.id", discrepancy.DiscrepancyID)))

	if autoFix {
		reason := fmt.Sprintf("reconciliation auto-fix, discrepancy %s", discrepancy.DiscrepancyID)
		if err := l.datasource.RecordBalanceCorrection(ctx, businessID, stored, calculated, reason); err != nil {
			return discrepancy, err
		}
		if err := l.datasource.UpdateStoredBalance(ctx, businessID, calculated); err != nil {
			return discrepancy, err
		}
		logrus.Warnf("auto-fixed balance for %s: stored %d -> calculated %d", businessID, stored, calculated)
	} else {
		logrus.Warnf("discrepancy for %s: stored %d, calculated %d, ledger %d", businessID, stored, calculated, ledgerBalance)
	}
	return discrepancy, nil
}

// ReconcileAll runs ReconcileBalance over every business and aggregates the
// outcome.
func (l *Engine) ReconcileAll(ctx context.Context, autoFix bool) (*model.ReconciliationSummary, error) {
	ctx, span := reconTracer.Start(ctx, "Reconciling all businesses",
		trace.WithAttributes(attribute.Bool("auto_fix", autoFix)))
	defer span.End()

	summary := &model.ReconciliationSummary{}
	limit, offset := 100, 0
	for {
		businesses, err := l.datasource.GetAllBusinesses(ctx, limit, offset)
		if err != nil {
			return summary, err
		}
		if len(businesses) == 0 {
			return summary, nil
		}
		for i := range businesses {
			summary.Processed++
			discrepancy, err := l.ReconcileBalance(ctx, businesses[i].BusinessID, autoFix)
			if err != nil {
				logrus.Errorf("reconciliation failed for %s: %v", businesses[i].BusinessID, err)
				summary.Skipped++
				continue
			}
			if discrepancy != nil {
				summary.Issues++
				if autoFix {
					summary.Fixed++
				}
			}
		}
		offset += limit
	}
}

// ReconcilePayrollIntegrity recomputes each payroll job's figures for a
// business and pay period from its stored employee snapshot and flags drift:
// hash mismatches, negative net salaries (auto-correctable to a zero-amount
// failed job), and duplicate employee/period jobs (keep earliest, fail the
// rest). Jobs already succeeded are reported but never touched, since their
// funds have moved.
func (l *Engine) ReconcilePayrollIntegrity(ctx context.Context, businessID string, period model.PayPeriod, autoFix bool) (*model.ReconciliationSummary, error) {
	ctx, span := reconTracer.Start(ctx, "Reconciling payroll integrity",
		trace.WithAttributes(attribute.String("business.id", businessID), attribute.Bool("auto_fix", autoFix)))
	defer span.End()

	jobs, err := l.datasource.GetPayrollJobsForPeriod(ctx, businessID, period.Start, period.End)
	if err != nil {
		return nil, err
	}

	summary := &model.ReconciliationSummary{}
	seenEmployee := map[string]bool{}

	for _, job := range jobs {
		summary.Processed++

		// Jobs are ordered by creation time, so the first job per employee
		// is the one to keep.
		if job.EmployeeID != "" && seenEmployee[job.EmployeeID] {
			summary.Issues++
			if !autoFix {
				continue
			}
			if err := l.failIntegrityJob(ctx, job, "duplicate job for employee and period"); err != nil {
				logrus.Errorf("failed to fail duplicate job %s: %v", job.JobID, err)
				summary.Skipped++
				continue
			}
			summary.Fixed++
			continue
		}
		if job.EmployeeID != "" {
			seenEmployee[job.EmployeeID] = true
		}

		if job.NetSalaryMinorUnits < 0 {
			summary.Issues++
			if !autoFix || job.Status == model.JobStatusSucceeded {
				continue
			}
			if err := l.correctNegativeNet(ctx, job); err != nil {
				logrus.Errorf("failed to correct negative net on job %s: %v", job.JobID, err)
				summary.Skipped++
				continue
			}
			summary.Fixed++
			continue
		}

		drifted, err := l.detectCalculationDrift(job)
		if err != nil {
			logrus.Errorf("failed to recompute job %s: %v", job.JobID, err)
			summary.Skipped++
			continue
		}
		if drifted {
			summary.Issues++
			if job.Status == model.JobStatusSucceeded {
				// Report only: funds have moved.
				logrus.Warnf("succeeded job %s has drifted calculation data", job.JobID)
				continue
			}
			if autoFix {
				if _, err := l.RecalculateJob(ctx, job.JobID); err != nil {
					logrus.Errorf("failed to recalculate drifted job %s: %v", job.JobID, err)
					summary.Skipped++
					continue
				}
				summary.Fixed++
			}
		}
	}
	return summary, nil
}

// detectCalculationDrift reports whether recomputing a job's figures from its
// stored snapshot no longer matches the stored calculation hash.
func (l *Engine) detectCalculationDrift(job *model.Job) (bool, error) {
	if job.CalculationHash != job.HashCalculation() {
		return true, nil
	}
	snapshot, err := model.DecodeEmployeeSnapshot(job.CalculationVersion, job.RecipientSnapshot)
	if err != nil {
		return false, err
	}
	result, err := l.calculator.Calculate(snapshot)
	if err != nil {
		return false, err
	}
	return result.GrossMinorUnits != job.GrossSalaryMinorUnits ||
		result.NetMinorUnits != job.NetSalaryMinorUnits, nil
}

// correctNegativeNet replaces a negative-net job with a zero-amount failed
// job. The stored row is immutable so the correction is a new job plus
// dead-letter, mirroring administrative correction.
func (l *Engine) correctNegativeNet(ctx context.Context, job *model.Job) error {
	replacement := buildReplacementJob(job, &model.CalculationResult{
		GrossMinorUnits: job.GrossSalaryMinorUnits,
		NetMinorUnits:   0,
	})
	if breakdown, err := model.DecodeTaxBreakdown(job.CalculationVersion, job.TaxBreakdown); err == nil && breakdown != nil {
		// Keep the stored tax figures on the corrected job for the audit trail.
		replacement.TaxBreakdown = job.TaxBreakdown
		replacement.CalculationHash = replacement.HashCalculation()
	}
	replacement.Status = model.JobStatusPending
	created, err := l.datasource.CreateJob(ctx, replacement)
	if err != nil {
		return err
	}
	if err := l.failIntegrityJob(ctx, job, "negative net salary corrected to zero"); err != nil {
		return err
	}
	// The corrected job must not pay out either.
	processing, err := l.UpdateJobStatusWithRetry(ctx, created.JobID, model.JobStatusProcessing, "")
	if err != nil {
		return err
	}
	return l.UpdateJobStatus(ctx, processing, model.JobStatusFailed, "net salary was negative, corrected to zero")
}

func (l *Engine) failIntegrityJob(ctx context.Context, job *model.Job, reason string) error {
	return l.datasource.MarkJobPermanentlyFailed(ctx, job.JobID, reason, l.clock(), job.Version)
}
