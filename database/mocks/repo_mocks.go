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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sibabalw/payments-app-sub003/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Business methods

func (m *MockDataSource) CreateBusiness(ctx context.Context, business model.Business) (model.Business, error) {
	args := m.Called(ctx, business)
	return args.Get(0).(model.Business), args.Error(1)
}

func (m *MockDataSource) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Business), args.Error(1)
}

func (m *MockDataSource) GetAllBusinesses(ctx context.Context, limit, offset int) ([]model.Business, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Business), args.Error(1)
}

func (m *MockDataSource) GetStoredBalance(ctx context.Context, businessID string) (*model.EscrowBalance, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EscrowBalance), args.Error(1)
}

func (m *MockDataSource) UpdateStoredBalance(ctx context.Context, businessID string, balanceMinorUnits int64) error {
	args := m.Called(ctx, businessID, balanceMinorUnits)
	return args.Error(0)
}

// Ledger methods

func (m *MockDataSource) CreateLedgerAccount(ctx context.Context, account model.LedgerAccount) (model.LedgerAccount, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(model.LedgerAccount), args.Error(1)
}

func (m *MockDataSource) GetLedgerAccount(ctx context.Context, id string) (*model.LedgerAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerAccount), args.Error(1)
}

func (m *MockDataSource) GetLedgerAccountByType(ctx context.Context, businessID, accountType string) (*model.LedgerAccount, error) {
	args := m.Called(ctx, businessID, accountType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerAccount), args.Error(1)
}

func (m *MockDataSource) RecordLedgerEntry(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetLedgerEntry(ctx context.Context, entryID string) (*model.LedgerEntry, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) MarkEntryPosted(ctx context.Context, entryID string) error {
	args := m.Called(ctx, entryID)
	return args.Error(0)
}

func (m *MockDataSource) ReverseEntry(ctx context.Context, entryID, reason string) (*model.LedgerEntry, error) {
	args := m.Called(ctx, entryID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetLedgerBalance(ctx context.Context, businessID, accountType string) (int64, error) {
	args := m.Called(ctx, businessID, accountType)
	return args.Get(0).(int64), args.Error(1)
}

// Deposit methods

func (m *MockDataSource) RecordDeposit(ctx context.Context, deposit *model.EscrowDeposit) (*model.EscrowDeposit, error) {
	args := m.Called(ctx, deposit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EscrowDeposit), args.Error(1)
}

func (m *MockDataSource) GetDeposit(ctx context.Context, id string) (*model.EscrowDeposit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EscrowDeposit), args.Error(1)
}

func (m *MockDataSource) ConfirmDeposit(ctx context.Context, id string, confirmedAt time.Time) error {
	args := m.Called(ctx, id, confirmedAt)
	return args.Error(0)
}

func (m *MockDataSource) ReleaseDepositFee(ctx context.Context, id string, releasedAt time.Time) error {
	args := m.Called(ctx, id, releasedAt)
	return args.Error(0)
}

func (m *MockDataSource) ReturnDepositPrincipal(ctx context.Context, id string, amountMinorUnits int64, returnedAt time.Time) error {
	args := m.Called(ctx, id, amountMinorUnits, returnedAt)
	return args.Error(0)
}

func (m *MockDataSource) SumConfirmedAuthorized(ctx context.Context, businessID string) (int64, error) {
	args := m.Called(ctx, businessID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) SumPendingAuthorized(ctx context.Context, businessID string) (int64, error) {
	args := m.Called(ctx, businessID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) SumReturnedPrincipal(ctx context.Context, businessID string) (int64, error) {
	args := m.Called(ctx, businessID)
	return args.Get(0).(int64), args.Error(1)
}

// Job methods

func (m *MockDataSource) CreateJob(ctx context.Context, j *model.Job) (*model.Job, error) {
	args := m.Called(ctx, j)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) UpdateJobStatus(ctx context.Context, jobID, newStatus, errorMessage string, processedAt *time.Time, expectedVersion int) error {
	args := m.Called(ctx, jobID, newStatus, errorMessage, processedAt, expectedVersion)
	return args.Error(0)
}

func (m *MockDataSource) ResetJobForRetry(ctx context.Context, jobID string, expectedVersion int) error {
	args := m.Called(ctx, jobID, expectedVersion)
	return args.Error(0)
}

func (m *MockDataSource) MarkJobPermanentlyFailed(ctx context.Context, jobID, reason string, failedAt time.Time, expectedVersion int) error {
	args := m.Called(ctx, jobID, reason, failedAt, expectedVersion)
	return args.Error(0)
}

func (m *MockDataSource) AssignJobToWindow(ctx context.Context, jobID, windowID string, expectedVersion int) error {
	args := m.Called(ctx, jobID, windowID, expectedVersion)
	return args.Error(0)
}

func (m *MockDataSource) SetJobEscrowDeposit(ctx context.Context, jobID, depositID string, expectedVersion int) error {
	args := m.Called(ctx, jobID, depositID, expectedVersion)
	return args.Error(0)
}

func (m *MockDataSource) GetStuckJobs(ctx context.Context, jobType string, threshold time.Duration, limit int) ([]*model.Job, error) {
	args := m.Called(ctx, jobType, threshold, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Job), args.Error(1)
}

func (m *MockDataSource) GetRetryableFailedJobs(ctx context.Context, jobType string, limit int) ([]*model.Job, error) {
	args := m.Called(ctx, jobType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Job), args.Error(1)
}

func (m *MockDataSource) GetJobsForWindow(ctx context.Context, windowID string) ([]*model.Job, error) {
	args := m.Called(ctx, windowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Job), args.Error(1)
}

func (m *MockDataSource) GetPayrollJobsForPeriod(ctx context.Context, businessID string, periodStart, periodEnd time.Time) ([]*model.Job, error) {
	args := m.Called(ctx, businessID, periodStart, periodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Job), args.Error(1)
}

func (m *MockDataSource) SumCommittedJobAmounts(ctx context.Context, businessID string) (int64, error) {
	args := m.Called(ctx, businessID)
	return args.Get(0).(int64), args.Error(1)
}

// Schedule methods

func (m *MockDataSource) CreateSchedule(ctx context.Context, s *model.Schedule) (*model.Schedule, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Schedule), args.Error(1)
}

func (m *MockDataSource) GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Schedule), args.Error(1)
}

func (m *MockDataSource) GetDueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Schedule), args.Error(1)
}

func (m *MockDataSource) AdvanceSchedule(ctx context.Context, scheduleID string, nextRunAt *time.Time, lastRunAt time.Time, status string) error {
	args := m.Called(ctx, scheduleID, nextRunAt, lastRunAt, status)
	return args.Error(0)
}

func (m *MockDataSource) GetScheduleRecipients(ctx context.Context, scheduleID string) ([]*model.ScheduleRecipient, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ScheduleRecipient), args.Error(1)
}

// Settlement methods

func (m *MockDataSource) CreateSettlementWindow(ctx context.Context, window *model.SettlementWindow) (*model.SettlementWindow, error) {
	args := m.Called(ctx, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SettlementWindow), args.Error(1)
}

func (m *MockDataSource) GetSettlementWindow(ctx context.Context, windowID string) (*model.SettlementWindow, error) {
	args := m.Called(ctx, windowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SettlementWindow), args.Error(1)
}

func (m *MockDataSource) UpdateWindowStatus(ctx context.Context, windowID, status string, transactionCount int, totalAmountMinorUnits int64, processedAt *time.Time) error {
	args := m.Called(ctx, windowID, status, transactionCount, totalAmountMinorUnits, processedAt)
	return args.Error(0)
}

// Reconciliation methods

func (m *MockDataSource) RecordDiscrepancy(ctx context.Context, discrepancy *model.ReconciliationDiscrepancy) (*model.ReconciliationDiscrepancy, error) {
	args := m.Called(ctx, discrepancy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReconciliationDiscrepancy), args.Error(1)
}

func (m *MockDataSource) GetOpenDiscrepancies(ctx context.Context, businessID string) ([]*model.ReconciliationDiscrepancy, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ReconciliationDiscrepancy), args.Error(1)
}

func (m *MockDataSource) UpdateDiscrepancyStatus(ctx context.Context, discrepancyID, status, approvedBy string, at time.Time) error {
	args := m.Called(ctx, discrepancyID, status, approvedBy, at)
	return args.Error(0)
}

func (m *MockDataSource) RecordBalanceCorrection(ctx context.Context, businessID string, previousMinorUnits, correctedMinorUnits int64, reason string) error {
	args := m.Called(ctx, businessID, previousMinorUnits, correctedMinorUnits, reason)
	return args.Error(0)
}

// Snapshot methods

func (m *MockDataSource) CreateBalanceSnapshot(ctx context.Context, s *model.BalanceSnapshot) (*model.BalanceSnapshot, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BalanceSnapshot), args.Error(1)
}

func (m *MockDataSource) GetLatestSnapshot(ctx context.Context, businessID, accountType string) (*model.BalanceSnapshot, error) {
	args := m.Called(ctx, businessID, accountType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BalanceSnapshot), args.Error(1)
}
