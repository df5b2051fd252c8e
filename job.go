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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sibabalw/payments-app-sub003/config"
	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	redlock "github.com/sibabalw/payments-app-sub003/internal/lock"
	"github.com/sibabalw/payments-app-sub003/model"
)

var jobTracer = otel.Tracer("payments.jobs")

// CreateJob persists a new job in pending.
func (l *Engine) CreateJob(ctx context.Context, job *model.Job) (*model.Job, error) {
	return l.datasource.CreateJob(ctx, job)
}

// GetJob returns a job by ID.
func (l *Engine) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return l.datasource.GetJob(ctx, jobID)
}

// UpdateJobStatus validates and applies a status transition on the version
// the given job was read at. Terminal transitions stamp processed_at. A
// concurrent write surfaces as OPTIMISTIC_LOCK_CONFLICT; callers that can
// safely re-read should use UpdateJobStatusWithRetry instead.
func (l *Engine) UpdateJobStatus(ctx context.Context, job *model.Job, newStatus, errorMessage string) error {
	if !model.IsValidTransition(job.Status, newStatus) {
		return apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("cannot transition job %s from %s to %s", job.JobID, job.Status, newStatus), nil)
	}
	if job.IsDeadLettered() {
		return apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("job %s is permanently failed and requires manual action", job.JobID), nil)
	}

	var processedAt *time.Time
	if model.IsTerminalStatus(newStatus) {
		now := l.clock()
		processedAt = &now
	}

	err := l.datasource.UpdateJobStatus(ctx, job.JobID, newStatus, errorMessage, processedAt, job.Version)
	if err != nil {
		return err
	}
	job.Status = newStatus
	job.ErrorMessage = errorMessage
	job.ProcessedAt = processedAt
	if newStatus == model.JobStatusProcessing {
		startedAt := l.clock()
		job.ProcessingStartedAt = &startedAt
	}
	job.Version++
	return nil
}

// UpdateJobStatusWithRetry re-reads and retries the transition on optimistic
// lock conflicts. It gives up once the transition is no longer valid from the
// re-read state, so a competing writer that already completed the job wins.
func (l *Engine) UpdateJobStatusWithRetry(ctx context.Context, jobID, newStatus, errorMessage string) (*model.Job, error) {
	var job *model.Job

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second

	err := backoff.Retry(func() error {
		var err error
		job, err = l.datasource.GetJob(ctx, jobID)
		if err != nil {
			return backoff.Permanent(err)
		}
		err = l.UpdateJobStatus(ctx, job, newStatus, errorMessage)
		if err == nil {
			return nil
		}
		if apierror.Is(err, apierror.ErrOptimisticLockConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if permanent, ok := err.(*backoff.PermanentError); ok {
			return nil, permanent.Unwrap()
		}
		return nil, err
	}
	return job, nil
}

// GuardImmutableFields rejects an update that touches any calculation field
// of an existing job. Historical audit and tax data may only be corrected by
// creating a new job and dead-lettering this one.
func GuardImmutableFields(stored, incoming *model.Job) error {
	changed := model.DiffImmutableFields(stored, incoming)
	if len(changed) == 0 {
		return nil
	}
	return apierror.NewAPIError(apierror.ErrImmutableFieldChange,
		fmt.Sprintf("job %s calculation fields are immutable: %s", stored.JobID, strings.Join(changed, ", ")), changed)
}

// ExecuteJob drives one job through the gateway under a per-job lease lock:
// pending -> processing -> succeeded or failed. Jobs already terminal are
// skipped, which makes settlement and dispatch re-runs safe.
func (l *Engine) ExecuteJob(ctx context.Context, jobID string) error {
	ctx, span := jobTracer.Start(ctx, "Executing job",
		trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	locker := redlock.NewLocker(l.redis, fmt.Sprintf("job:%s", jobID), model.GenerateUUIDWithSuffix("loc"))
	lockTTL := time.Duration(cfg.Engine.LockTTLSec) * time.Second
	if err := locker.WaitLock(ctx, lockTTL, time.Duration(cfg.Engine.LockWaitSec)*time.Second); err != nil {
		return err
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Errorf("failed to release lock for job %s: %v", jobID, err)
		}
	}()

	job, err := l.datasource.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == model.JobStatusSucceeded || job.Status == model.JobStatusFailed {
		span.AddEvent("Job already terminal, skipping", trace.WithAttributes(attribute.String("job.status", job.Status)))
		logrus.Infof("job %s already %s, skipping execution", job.JobID, job.Status)
		return nil
	}

	if job.Status == model.JobStatusPending {
		if err := l.UpdateJobStatus(ctx, job, model.JobStatusProcessing, ""); err != nil {
			return err
		}
	}

	if err := l.gateway.Execute(ctx, job); err != nil {
		span.RecordError(err)
		if statusErr := l.UpdateJobStatus(ctx, job, model.JobStatusFailed, err.Error()); statusErr != nil {
			return statusErr
		}
		return err
	}
	if err := l.recordJobLedgerEntries(ctx, job); err != nil {
		if statusErr := l.UpdateJobStatus(ctx, job, model.JobStatusFailed, err.Error()); statusErr != nil {
			return statusErr
		}
		return err
	}
	return l.UpdateJobStatus(ctx, job, model.JobStatusSucceeded, "")
}

// RecalculateJob rebuilds a job's calculation from its stored employee
// snapshot under a lease lock. An unchanged calculation is a no-op. A changed
// one cannot touch the stored row: the old job is dead-lettered and a new job
// with the corrected figures takes its place.
func (l *Engine) RecalculateJob(ctx context.Context, jobID string) (*model.Job, error) {
	ctx, span := jobTracer.Start(ctx, "Recalculating job",
		trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	locker := redlock.NewLocker(l.redis, fmt.Sprintf("recalculate:%s", jobID), model.GenerateUUIDWithSuffix("loc"))
	if err := locker.Lock(ctx, time.Duration(cfg.Engine.LockTTLSec)*time.Second); err != nil {
		return nil, err
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Errorf("failed to release recalculation lock for job %s: %v", jobID, err)
		}
	}()

	job, err := l.datasource.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.JobType != model.JobTypePayroll {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("job %s is not a payroll job", jobID), nil)
	}
	if job.Status == model.JobStatusSucceeded {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("job %s already succeeded, funds have moved", jobID), nil)
	}

	snapshot, err := model.DecodeEmployeeSnapshot(job.CalculationVersion, job.RecipientSnapshot)
	if err != nil {
		return nil, err
	}
	result, err := l.calculator.Calculate(snapshot)
	if err != nil {
		return nil, err
	}

	replacement := buildReplacementJob(job, result)
	if err := GuardImmutableFields(job, replacement); err == nil {
		// Recalculation matches the stored figures, nothing to correct.
		return job, nil
	}

	if _, err := l.datasource.CreateJob(ctx, replacement); err != nil {
		return nil, err
	}
	reason := fmt.Sprintf("superseded by recalculation, replacement job %s", replacement.JobID)
	if err := l.datasource.MarkJobPermanentlyFailed(ctx, job.JobID, reason, l.clock(), job.Version); err != nil {
		return nil, err
	}
	logrus.Infof("job %s superseded by %s after recalculation", job.JobID, replacement.JobID)
	return replacement, nil
}

func buildReplacementJob(job *model.Job, result *model.CalculationResult) *model.Job {
	taxJSON, _ := json.Marshal(result.Tax)
	replacement := &model.Job{
		JobType:               job.JobType,
		BusinessID:            job.BusinessID,
		ScheduleID:            job.ScheduleID,
		EmployeeID:            job.EmployeeID,
		RecipientID:           job.RecipientID,
		AmountMinorUnits:      result.NetMinorUnits,
		GrossSalaryMinorUnits: result.GrossMinorUnits,
		NetSalaryMinorUnits:   result.NetMinorUnits,
		Currency:              job.Currency,
		TaxBreakdown:          taxJSON,
		RecipientSnapshot:     job.RecipientSnapshot,
		CalculationVersion:    model.CurrentCalculationVersion,
		PeriodStart:           job.PeriodStart,
		PeriodEnd:             job.PeriodEnd,
		Status:                model.JobStatusPending,
	}
	replacement.CalculationHash = replacement.HashCalculation()
	return replacement
}
