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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sibabalw/payments-app-sub003/model"
)

// RunSummary is the machine-readable outcome of an engine batch operation.
type RunSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// CreateSchedule persists a schedule. Recurring schedules get their first
// next_run_at from the cron expression; one-time schedules must carry it
// explicitly.
func (l *Engine) CreateSchedule(ctx context.Context, schedule *model.Schedule) (*model.Schedule, error) {
	if schedule.ScheduleType == model.ScheduleTypeRecurring && schedule.NextRunAt == nil {
		next, err := schedule.NextOccurrence(l.clock())
		if err != nil {
			return nil, err
		}
		schedule.NextRunAt = &next
	}
	return l.datasource.CreateSchedule(ctx, schedule)
}

// RunDueSchedules resolves every schedule due at the current clock time:
// materialize one job per enrolled recipient, dispatch it, then advance or
// retire the schedule. Each schedule fails independently; one broken schedule
// never blocks the rest of the run.
func (l *Engine) RunDueSchedules(ctx context.Context) (*RunSummary, error) {
	now := l.clock()
	due, err := l.datasource.GetDueSchedules(ctx, now)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	for _, schedule := range due {
		summary.Processed++
		if err := l.resolveSchedule(ctx, schedule, now); err != nil {
			logrus.Errorf("failed to resolve schedule %s: %v", schedule.ScheduleID, err)
			summary.Failed++
			continue
		}
		summary.Succeeded++
	}
	return summary, nil
}

// resolveSchedule materializes and dispatches the jobs for one due schedule,
// then advances it. Jobs are created at execution time so recipient snapshots
// are never stale fan-out from schedule creation.
func (l *Engine) resolveSchedule(ctx context.Context, schedule *model.Schedule, executionDate time.Time) error {
	recipients, err := l.datasource.GetScheduleRecipients(ctx, schedule.ScheduleID)
	if err != nil {
		return err
	}

	period := model.CalculatePayPeriod(schedule, executionDate)
	for _, recipient := range recipients {
		job, err := l.materializeJob(ctx, schedule, recipient, period)
		if err != nil {
			// Recipient enumeration order is preserved but each job is
			// independent; keep going so one bad row does not starve the rest.
			logrus.Errorf("failed to materialize job for schedule %s recipient %s%s: %v",
				schedule.ScheduleID, recipient.RecipientID, recipient.EmployeeID, err)
			continue
		}
		if l.queue != nil {
			if err := l.queue.Dispatch(ctx, job); err != nil {
				logrus.Errorf("failed to dispatch job %s: %v", job.JobID, err)
			}
		}
	}

	return l.advanceSchedule(ctx, schedule, executionDate)
}

// materializeJob builds one job from an enrolled recipient. Payroll jobs run
// the calculator over the stored employee snapshot; payment jobs carry the
// enrolled amount directly.
func (l *Engine) materializeJob(ctx context.Context, schedule *model.Schedule, recipient *model.ScheduleRecipient, period model.PayPeriod) (*model.Job, error) {
	job := &model.Job{
		JobType:           schedule.JobType,
		BusinessID:        schedule.BusinessID,
		ScheduleID:        schedule.ScheduleID,
		EmployeeID:        recipient.EmployeeID,
		RecipientID:       recipient.RecipientID,
		AmountMinorUnits:  recipient.AmountMinorUnits,
		Currency:          currencyForSchedule(schedule),
		RecipientSnapshot: recipient.Snapshot,
		PeriodStart:       period.Start,
		PeriodEnd:         period.End,
		Status:            model.JobStatusPending,
	}

	if schedule.JobType == model.JobTypePayroll {
		snapshot, err := model.DecodeEmployeeSnapshot(model.CurrentCalculationVersion, recipient.Snapshot)
		if err != nil {
			return nil, err
		}
		result, err := l.calculator.Calculate(snapshot)
		if err != nil {
			return nil, err
		}
		taxJSON, err := json.Marshal(result.Tax)
		if err != nil {
			return nil, err
		}
		job.GrossSalaryMinorUnits = result.GrossMinorUnits
		job.NetSalaryMinorUnits = result.NetMinorUnits
		job.AmountMinorUnits = result.NetMinorUnits
		job.TaxBreakdown = taxJSON
	}

	return l.datasource.CreateJob(ctx, job)
}

// advanceSchedule retires a one-time schedule or moves a recurring one to its
// next cron occurrence.
func (l *Engine) advanceSchedule(ctx context.Context, schedule *model.Schedule, executionDate time.Time) error {
	if schedule.ScheduleType == model.ScheduleTypeOneTime {
		return l.datasource.AdvanceSchedule(ctx, schedule.ScheduleID, nil, executionDate, model.ScheduleStatusCancelled)
	}
	next, err := schedule.NextOccurrence(executionDate)
	if err != nil {
		return err
	}
	return l.datasource.AdvanceSchedule(ctx, schedule.ScheduleID, &next, executionDate, schedule.Status)
}

func currencyForSchedule(schedule *model.Schedule) string {
	if currency, ok := schedule.MetaData["currency"].(string); ok {
		return currency
	}
	return "ZAR"
}
