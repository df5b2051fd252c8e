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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

const jobColumns = `
	job_id, job_type, business_id, COALESCE(schedule_id, ''),
	COALESCE(employee_id, ''), COALESCE(recipient_id, ''),
	amount_minor_units, gross_salary_minor_units, net_salary_minor_units,
	currency, tax_breakdown, recipient_snapshot, calculation_hash,
	calculation_version, period_start, period_end, status,
	COALESCE(error_message, ''), processed_at, processing_started_at,
	COALESCE(escrow_deposit_id, ''),
	fee_released_at, principal_returned_at, permanently_failed_at,
	retry_count, COALESCE(settlement_window_id, ''), version, created_at`

func scanJob(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Job, error) {
	j := model.Job{}
	var taxBreakdown, recipientSnapshot []byte
	var processedAt, processingStartedAt, feeReleasedAt, principalReturnedAt, permanentlyFailedAt sql.NullTime

	err := scanner.Scan(&j.JobID, &j.JobType, &j.BusinessID, &j.ScheduleID,
		&j.EmployeeID, &j.RecipientID, &j.AmountMinorUnits, &j.GrossSalaryMinorUnits,
		&j.NetSalaryMinorUnits, &j.Currency, &taxBreakdown, &recipientSnapshot,
		&j.CalculationHash, &j.CalculationVersion, &j.PeriodStart, &j.PeriodEnd,
		&j.Status, &j.ErrorMessage, &processedAt, &processingStartedAt, &j.EscrowDepositID,
		&feeReleasedAt, &principalReturnedAt, &permanentlyFailedAt,
		&j.RetryCount, &j.SettlementWindowID, &j.Version, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	j.TaxBreakdown = taxBreakdown
	j.RecipientSnapshot = recipientSnapshot
	if processedAt.Valid {
		j.ProcessedAt = &processedAt.Time
	}
	if processingStartedAt.Valid {
		j.ProcessingStartedAt = &processingStartedAt.Time
	}
	if feeReleasedAt.Valid {
		j.FeeReleasedAt = &feeReleasedAt.Time
	}
	if principalReturnedAt.Valid {
		j.PrincipalReturnedAt = &principalReturnedAt.Time
	}
	if permanentlyFailedAt.Valid {
		j.PermanentlyFailedAt = &permanentlyFailedAt.Time
	}
	return &j, nil
}

func (d Datasource) CreateJob(ctx context.Context, j *model.Job) (*model.Job, error) {
	metaDataJSON, err := json.Marshal(j.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	prefix := "pyj"
	if j.JobType == model.JobTypePayroll {
		prefix = "prj"
	}
	j.JobID = model.GenerateUUIDWithSuffix(prefix)
	if j.Status == "" {
		j.Status = model.JobStatusPending
	}
	if j.CalculationVersion == 0 {
		j.CalculationVersion = model.CurrentCalculationVersion
	}
	if j.CalculationHash == "" {
		j.CalculationHash = j.HashCalculation()
	}
	j.Version = 1
	j.CreatedAt = time.Now()

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO jobs
			(job_id, job_type, business_id, schedule_id, employee_id, recipient_id,
			 amount_minor_units, gross_salary_minor_units, net_salary_minor_units,
			 currency, tax_breakdown, recipient_snapshot, calculation_hash,
			 calculation_version, period_start, period_end, status, version, meta_data)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
			$7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, j.JobID, j.JobType, j.BusinessID, j.ScheduleID, j.EmployeeID, j.RecipientID,
		j.AmountMinorUnits, j.GrossSalaryMinorUnits, j.NetSalaryMinorUnits,
		j.Currency, nullableJSON(j.TaxBreakdown), nullableJSON(j.RecipientSnapshot),
		j.CalculationHash, j.CalculationVersion, j.PeriodStart, j.PeriodEnd,
		j.Status, j.Version, metaDataJSON)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "foreign_key_violation" {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Business or schedule not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create job", err)
	}

	return j, nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func (d Datasource) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE job_id = $1
	`, jobID)

	j, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Job not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job", err)
	}
	return j, nil
}

// UpdateJobStatus performs the version-conditioned status write. The caller
// hands in the version it last read; zero rows affected means another writer
// got there first and the caller must re-read and retry. Entering processing
// stamps processing_started_at, which is what the stuck-job sweep measures
// against.
func (d Datasource) UpdateJobStatus(ctx context.Context, jobID, newStatus, errorMessage string, processedAt *time.Time, expectedVersion int) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1,
			error_message = NULLIF($2, ''),
			processed_at = COALESCE($3, processed_at),
			processing_started_at = CASE WHEN $1 = 'processing' THEN NOW() ELSE processing_started_at END,
			version = version + 1
		WHERE job_id = $4 AND version = $5
	`, newStatus, errorMessage, processedAt, jobID, expectedVersion)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update job status", err)
	}
	return d.checkVersionedUpdate(ctx, result, jobID, expectedVersion)
}

// ResetJobForRetry moves a failed job back to pending and bumps its retry
// count, conditioned on the version and on the job not being dead-lettered.
// The terminal and processing timestamps are cleared so a pending job never
// carries a stale processed_at or looks stuck from a prior attempt.
func (d Datasource) ResetJobForRetry(ctx context.Context, jobID string, expectedVersion int) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending',
			error_message = NULL,
			processed_at = NULL,
			processing_started_at = NULL,
			retry_count = retry_count + 1,
			version = version + 1
		WHERE job_id = $1 AND version = $2
		  AND status = 'failed' AND permanently_failed_at IS NULL
	`, jobID, expectedVersion)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reset job for retry", err)
	}
	return d.checkVersionedUpdate(ctx, result, jobID, expectedVersion)
}

// MarkJobPermanentlyFailed dead-letters a job. Once permanently_failed_at is
// set the job is excluded from every automatic recovery query and requires
// manual operator action.
func (d Datasource) MarkJobPermanentlyFailed(ctx context.Context, jobID, reason string, failedAt time.Time, expectedVersion int) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed',
			error_message = $1,
			permanently_failed_at = $2,
			version = version + 1
		WHERE job_id = $3 AND version = $4 AND permanently_failed_at IS NULL
	`, reason, failedAt, jobID, expectedVersion)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark job permanently failed", err)
	}
	return d.checkVersionedUpdate(ctx, result, jobID, expectedVersion)
}

func (d Datasource) AssignJobToWindow(ctx context.Context, jobID, windowID string, expectedVersion int) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs
		SET settlement_window_id = $1, version = version + 1
		WHERE job_id = $2 AND version = $3 AND status = 'pending'
	`, windowID, jobID, expectedVersion)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to assign job to window", err)
	}
	return d.checkVersionedUpdate(ctx, result, jobID, expectedVersion)
}

func (d Datasource) SetJobEscrowDeposit(ctx context.Context, jobID, depositID string, expectedVersion int) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs
		SET escrow_deposit_id = $1, version = version + 1
		WHERE job_id = $2 AND version = $3
	`, depositID, jobID, expectedVersion)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to set job escrow deposit", err)
	}
	return d.checkVersionedUpdate(ctx, result, jobID, expectedVersion)
}

// checkVersionedUpdate turns a zero-row conditioned update into the right
// typed error: conflict when the row exists at another version, not-found
// otherwise.
func (d Datasource) checkVersionedUpdate(ctx context.Context, result sql.Result, jobID string, expectedVersion int) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var currentVersion int
	err = d.Conn.QueryRowContext(ctx, `SELECT version FROM jobs WHERE job_id = $1`, jobID).Scan(&currentVersion)
	if err != nil {
		if err == sql.ErrNoRows {
			return apierror.NewAPIError(apierror.ErrNotFound, "Job not found", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to inspect job version", err)
	}
	return apierror.NewAPIError(apierror.ErrOptimisticLockConflict,
		fmt.Sprintf("Job %s was modified concurrently (read version %d, current %d)", jobID, expectedVersion, currentVersion), nil)
}

// GetStuckJobs returns jobs sitting in processing for longer than the
// threshold, measured from when each job entered processing, oldest first,
// excluding dead-lettered rows. The limit caps the blast radius of one
// recovery pass. A job that waited in pending for hours is not stuck the
// moment a worker picks it up.
func (d Datasource) GetStuckJobs(ctx context.Context, jobType string, threshold time.Duration, limit int) ([]*model.Job, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'processing'
		  AND permanently_failed_at IS NULL
		  AND ($1 = '' OR job_type = $1)
		  AND processing_started_at IS NOT NULL
		  AND processing_started_at < NOW() - $2 * INTERVAL '1 second'
		ORDER BY processing_started_at ASC
		LIMIT $3
	`, jobType, int64(threshold.Seconds()), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stuck jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (d Datasource) GetRetryableFailedJobs(ctx context.Context, jobType string, limit int) ([]*model.Job, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'failed'
		  AND permanently_failed_at IS NULL
		  AND ($1 = '' OR job_type = $1)
		ORDER BY created_at ASC
		LIMIT $2
	`, jobType, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve failed jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (d Datasource) GetJobsForWindow(ctx context.Context, windowID string) ([]*model.Job, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE settlement_window_id = $1
		ORDER BY created_at ASC
	`, windowID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve window jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (d Datasource) GetPayrollJobsForPeriod(ctx context.Context, businessID string, periodStart, periodEnd time.Time) ([]*model.Job, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE job_type = 'payroll'
		  AND business_id = $1
		  AND period_start = $2 AND period_end = $3
		  AND permanently_failed_at IS NULL
		ORDER BY created_at ASC
	`, businessID, periodStart, periodEnd)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payroll jobs for period", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// SumCommittedJobAmounts totals the jobs that currently hold escrow funds:
// succeeded jobs have spent them, processing jobs have them earmarked.
func (d Datasource) SumCommittedJobAmounts(ctx context.Context, businessID string) (int64, error) {
	var total int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_minor_units), 0)
		FROM jobs
		WHERE business_id = $1 AND status IN ('succeeded', 'processing')
	`, businessID).Scan(&total)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum committed job amounts", err)
	}
	return total, nil
}

func collectJobs(rows *sql.Rows) ([]*model.Job, error) {
	jobs := []*model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan job data", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over jobs", err)
	}
	return jobs, nil
}
