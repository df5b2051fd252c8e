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
	"time"

	"github.com/sibabalw/payments-app-sub003/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	business       // Businesses and their stored balances
	ledger         // Append-only double-entry journal
	deposit        // Escrow deposits
	job            // Payment and payroll jobs with optimistic locking
	schedule       // Recurring and one-time schedules
	settlement     // Settlement windows
	reconciliation // Discrepancies and corrections
	snapshot       // Cached balance snapshots
}

// business defines methods for businesses and their cached escrow balances.
type business interface {
	CreateBusiness(ctx context.Context, business model.Business) (model.Business, error)
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
	GetAllBusinesses(ctx context.Context, limit, offset int) ([]model.Business, error)
	GetStoredBalance(ctx context.Context, businessID string) (*model.EscrowBalance, error)
	UpdateStoredBalance(ctx context.Context, businessID string, balanceMinorUnits int64) error
}

// ledger defines methods for the append-only journal.
type ledger interface {
	CreateLedgerAccount(ctx context.Context, account model.LedgerAccount) (model.LedgerAccount, error)
	GetLedgerAccount(ctx context.Context, id string) (*model.LedgerAccount, error)
	GetLedgerAccountByType(ctx context.Context, businessID, accountType string) (*model.LedgerAccount, error)
	RecordLedgerEntry(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, error) // Assigns the global sequence number
	GetLedgerEntry(ctx context.Context, entryID string) (*model.LedgerEntry, error)
	MarkEntryPosted(ctx context.Context, entryID string) error // Idempotent on already-posted entries
	ReverseEntry(ctx context.Context, entryID, reason string) (*model.LedgerEntry, error)
	GetLedgerBalance(ctx context.Context, businessID, accountType string) (int64, error) // Posted credits minus posted debits
}

// deposit defines methods for escrow deposits.
type deposit interface {
	RecordDeposit(ctx context.Context, deposit *model.EscrowDeposit) (*model.EscrowDeposit, error)
	GetDeposit(ctx context.Context, id string) (*model.EscrowDeposit, error)
	ConfirmDeposit(ctx context.Context, id string, confirmedAt time.Time) error
	ReleaseDepositFee(ctx context.Context, id string, releasedAt time.Time) error
	ReturnDepositPrincipal(ctx context.Context, id string, amountMinorUnits int64, returnedAt time.Time) error
	SumConfirmedAuthorized(ctx context.Context, businessID string) (int64, error)
	SumPendingAuthorized(ctx context.Context, businessID string) (int64, error) // Optimistic view only, never authoritative
	SumReturnedPrincipal(ctx context.Context, businessID string) (int64, error)
}

// job defines methods for the job state machine. All writes are conditioned on
// the version the caller last read.
type job interface {
	CreateJob(ctx context.Context, j *model.Job) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJobStatus(ctx context.Context, jobID, newStatus, errorMessage string, processedAt *time.Time, expectedVersion int) error
	ResetJobForRetry(ctx context.Context, jobID string, expectedVersion int) error // failed -> pending, bumps retry_count
	MarkJobPermanentlyFailed(ctx context.Context, jobID, reason string, failedAt time.Time, expectedVersion int) error
	AssignJobToWindow(ctx context.Context, jobID, windowID string, expectedVersion int) error
	SetJobEscrowDeposit(ctx context.Context, jobID, depositID string, expectedVersion int) error
	GetStuckJobs(ctx context.Context, jobType string, threshold time.Duration, limit int) ([]*model.Job, error)
	GetRetryableFailedJobs(ctx context.Context, jobType string, limit int) ([]*model.Job, error)
	GetJobsForWindow(ctx context.Context, windowID string) ([]*model.Job, error)
	GetPayrollJobsForPeriod(ctx context.Context, businessID string, periodStart, periodEnd time.Time) ([]*model.Job, error)
	SumCommittedJobAmounts(ctx context.Context, businessID string) (int64, error) // Jobs in succeeded or processing funded from escrow
}

// schedule defines methods for schedules and their enrolled recipients.
type schedule interface {
	CreateSchedule(ctx context.Context, s *model.Schedule) (*model.Schedule, error)
	GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error)
	GetDueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error)
	AdvanceSchedule(ctx context.Context, scheduleID string, nextRunAt *time.Time, lastRunAt time.Time, status string) error
	GetScheduleRecipients(ctx context.Context, scheduleID string) ([]*model.ScheduleRecipient, error)
}

// settlement defines methods for settlement windows.
type settlement interface {
	CreateSettlementWindow(ctx context.Context, window *model.SettlementWindow) (*model.SettlementWindow, error)
	GetSettlementWindow(ctx context.Context, windowID string) (*model.SettlementWindow, error)
	UpdateWindowStatus(ctx context.Context, windowID, status string, transactionCount int, totalAmountMinorUnits int64, processedAt *time.Time) error
}

// reconciliation defines methods for discrepancies and the correction audit trail.
type reconciliation interface {
	RecordDiscrepancy(ctx context.Context, discrepancy *model.ReconciliationDiscrepancy) (*model.ReconciliationDiscrepancy, error)
	GetOpenDiscrepancies(ctx context.Context, businessID string) ([]*model.ReconciliationDiscrepancy, error)
	UpdateDiscrepancyStatus(ctx context.Context, discrepancyID, status, approvedBy string, at time.Time) error
	RecordBalanceCorrection(ctx context.Context, businessID string, previousMinorUnits, correctedMinorUnits int64, reason string) error
}

// snapshot defines methods for cached balance snapshots.
type snapshot interface {
	CreateBalanceSnapshot(ctx context.Context, s *model.BalanceSnapshot) (*model.BalanceSnapshot, error)
	GetLatestSnapshot(ctx context.Context, businessID, accountType string) (*model.BalanceSnapshot, error)
}
