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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sibabalw/payments-app-sub003/database/mocks"
	"github.com/sibabalw/payments-app-sub003/model"
)

func expectRecalculation(mockDS *mocks.MockDataSource, businessID string, deposits, committed, returned int64) {
	mockDS.On("SumConfirmedAuthorized", mock.Anything, businessID).Return(deposits, nil)
	mockDS.On("SumCommittedJobAmounts", mock.Anything, businessID).Return(committed, nil)
	mockDS.On("SumReturnedPrincipal", mock.Anything, businessID).Return(returned, nil)
}

func expectBalanceRefresh(mockDS *mocks.MockDataSource, businessID string, deposits, committed, returned int64) {
	expectRecalculation(mockDS, businessID, deposits, committed, returned)
	mockDS.On("UpdateStoredBalance", mock.Anything, businessID, deposits-committed-returned).Return(nil)
}

func TestReconcileBalance_WithinToleranceIsClean(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	mockDS.On("GetStoredBalance", mock.Anything, "bus_1").
		Return(&model.EscrowBalance{BusinessID: "bus_1", BalanceMinorUnits: 475000}, nil)
	expectRecalculation(mockDS, "bus_1", 975000, 500000, 0)
	mockDS.On("GetLedgerBalance", mock.Anything, "bus_1", model.AccountTypeEscrow).Return(int64(475000), nil)

	discrepancy, err := engine.ReconcileBalance(context.Background(), "bus_1", false)
	assert.NoError(t, err)
	assert.Nil(t, discrepancy)
	mockDS.AssertNotCalled(t, "RecordDiscrepancy", mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

// The stored balance has drifted 100.00 above the authoritative recalculation.
// Without autoFix the discrepancy is recorded open and nothing is written.
func TestReconcileBalance_RecordsDiscrepancy(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	mockDS.On("GetStoredBalance", mock.Anything, "bus_1").
		Return(&model.EscrowBalance{BusinessID: "bus_1", BalanceMinorUnits: 485000}, nil)
	expectRecalculation(mockDS, "bus_1", 975000, 500000, 0)
	mockDS.On("GetLedgerBalance", mock.Anything, "bus_1", model.AccountTypeEscrow).Return(int64(475000), nil)
	mockDS.On("RecordDiscrepancy", mock.Anything, mock.MatchedBy(func(d *model.ReconciliationDiscrepancy) bool {
		return d.BusinessID == "bus_1" &&
			d.StoredMinorUnits == 485000 &&
			d.CalculatedMinorUnits == 475000 &&
			d.DifferenceMinorUnits == 10000 &&
			d.Status == model.DiscrepancyStatusOpen &&
			!d.AutoFixed
	})).Return(&model.ReconciliationDiscrepancy{DiscrepancyID: "disc_1", Status: model.DiscrepancyStatusOpen}, nil)

	discrepancy, err := engine.ReconcileBalance(context.Background(), "bus_1", false)
	assert.NoError(t, err)
	assert.NotNil(t, discrepancy)
	assert.Equal(t, "disc_1", discrepancy.DiscrepancyID)
	mockDS.AssertNotCalled(t, "RecordBalanceCorrection", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertNotCalled(t, "UpdateStoredBalance", mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

func TestReconcileBalance_AutoFixWritesCorrection(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	mockDS.On("GetStoredBalance", mock.Anything, "bus_1").
		Return(&model.EscrowBalance{BusinessID: "bus_1", BalanceMinorUnits: 485000}, nil)
	expectRecalculation(mockDS, "bus_1", 975000, 500000, 0)
	mockDS.On("GetLedgerBalance", mock.Anything, "bus_1", model.AccountTypeEscrow).Return(int64(475000), nil)
	mockDS.On("RecordDiscrepancy", mock.Anything, mock.MatchedBy(func(d *model.ReconciliationDiscrepancy) bool {
		return d.Status == model.DiscrepancyStatusResolved && d.AutoFixed
	})).Return(&model.ReconciliationDiscrepancy{DiscrepancyID: "disc_1", Status: model.DiscrepancyStatusResolved, AutoFixed: true}, nil)
	mockDS.On("RecordBalanceCorrection", mock.Anything, "bus_1", int64(485000), int64(475000), "reconciliation auto-fix, discrepancy disc_1").
		Return(nil)
	mockDS.On("UpdateStoredBalance", mock.Anything, "bus_1", int64(475000)).Return(nil)

	discrepancy, err := engine.ReconcileBalance(context.Background(), "bus_1", true)
	assert.NoError(t, err)
	assert.True(t, discrepancy.AutoFixed)
	mockDS.AssertExpectations(t)
}

func TestReconcileAll_AggregatesAcrossBusinesses(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	mockDS.On("GetAllBusinesses", mock.Anything, 100, 0).
		Return([]model.Business{{BusinessID: "bus_1"}, {BusinessID: "bus_2"}}, nil)
	mockDS.On("GetAllBusinesses", mock.Anything, 100, 100).
		Return([]model.Business{}, nil)

	// bus_1 is clean, bus_2 has drifted.
	mockDS.On("GetStoredBalance", mock.Anything, "bus_1").
		Return(&model.EscrowBalance{BusinessID: "bus_1", BalanceMinorUnits: 475000}, nil)
	expectRecalculation(mockDS, "bus_1", 975000, 500000, 0)
	mockDS.On("GetLedgerBalance", mock.Anything, "bus_1", model.AccountTypeEscrow).Return(int64(475000), nil)

	mockDS.On("GetStoredBalance", mock.Anything, "bus_2").
		Return(&model.EscrowBalance{BusinessID: "bus_2", BalanceMinorUnits: 300000}, nil)
	expectRecalculation(mockDS, "bus_2", 200000, 0, 0)
	mockDS.On("GetLedgerBalance", mock.Anything, "bus_2", model.AccountTypeEscrow).Return(int64(200000), nil)
	mockDS.On("RecordDiscrepancy", mock.Anything, mock.AnythingOfType("*model.ReconciliationDiscrepancy")).
		Return(&model.ReconciliationDiscrepancy{DiscrepancyID: "disc_2", Status: model.DiscrepancyStatusOpen}, nil)

	summary, err := engine.ReconcileAll(context.Background(), false)
	assert.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Issues)
	assert.Equal(t, 0, summary.Fixed)
	mockDS.AssertExpectations(t)
}

func marchPeriod() model.PayPeriod {
	return model.PayPeriod{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestReconcilePayrollIntegrity_CleanPeriod(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	period := marchPeriod()
	job := payrollJobFromSnapshot(t, "prj_1", 2000000, nil)
	mockDS.On("GetPayrollJobsForPeriod", mock.Anything, "bus_1", period.Start, period.End).
		Return([]*model.Job{job}, nil)

	summary, err := engine.ReconcilePayrollIntegrity(context.Background(), "bus_1", period, false)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Issues)
	mockDS.AssertExpectations(t)
}

// Two jobs for the same employee and period: the earliest stays, the later one
// is dead-lettered when autoFix is on.
func TestReconcilePayrollIntegrity_DuplicateJobs(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	period := marchPeriod()
	first := payrollJobFromSnapshot(t, "prj_1", 2000000, nil)
	duplicate := payrollJobFromSnapshot(t, "prj_2", 2000000, nil)
	duplicate.Version = 2

	mockDS.On("GetPayrollJobsForPeriod", mock.Anything, "bus_1", period.Start, period.End).
		Return([]*model.Job{first, duplicate}, nil)
	mockDS.On("MarkJobPermanentlyFailed", mock.Anything, "prj_2", "duplicate job for employee and period", fixedTime, 2).
		Return(nil)

	summary, err := engine.ReconcilePayrollIntegrity(context.Background(), "bus_1", period, true)
	assert.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Issues)
	assert.Equal(t, 1, summary.Fixed)
	mockDS.AssertExpectations(t)
}

func TestReconcilePayrollIntegrity_DuplicateReportOnlyWithoutAutoFix(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	period := marchPeriod()
	first := payrollJobFromSnapshot(t, "prj_1", 2000000, nil)
	duplicate := payrollJobFromSnapshot(t, "prj_2", 2000000, nil)

	mockDS.On("GetPayrollJobsForPeriod", mock.Anything, "bus_1", period.Start, period.End).
		Return([]*model.Job{first, duplicate}, nil)

	summary, err := engine.ReconcilePayrollIntegrity(context.Background(), "bus_1", period, false)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Issues)
	assert.Equal(t, 0, summary.Fixed)
	mockDS.AssertNotCalled(t, "MarkJobPermanentlyFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

// A deduction larger than the salary produced a negative net. The correction
// is a new zero-net job that is forced to failed, plus a dead-letter on the
// original; the stored row is never edited.
func TestReconcilePayrollIntegrity_NegativeNetCorrected(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	period := marchPeriod()
	job := payrollJobFromSnapshot(t, "prj_1", 1000000, []model.AdjustmentV1{
		{Code: "garnishee", AmountMinorUnits: -2000000},
	})
	assert.Negative(t, job.NetSalaryMinorUnits)

	replacement := &model.Job{JobID: "prj_2", Status: model.JobStatusPending, Version: 1}

	mockDS.On("GetPayrollJobsForPeriod", mock.Anything, "bus_1", period.Start, period.End).
		Return([]*model.Job{job}, nil)
	mockDS.On("CreateJob", mock.Anything, mock.MatchedBy(func(j *model.Job) bool {
		return j.NetSalaryMinorUnits == 0 && j.AmountMinorUnits == 0
	})).Return(replacement, nil)
	mockDS.On("MarkJobPermanentlyFailed", mock.Anything, "prj_1", "negative net salary corrected to zero", fixedTime, 1).
		Return(nil)
	mockDS.On("GetJob", mock.Anything, "prj_2").Return(replacement, nil)
	mockDS.On("UpdateJobStatus", mock.Anything, "prj_2", model.JobStatusProcessing, "", (*time.Time)(nil), 1).
		Return(nil)
	mockDS.On("UpdateJobStatus", mock.Anything, "prj_2", model.JobStatusFailed, "net salary was negative, corrected to zero", &fixedTime, 2).
		Return(nil)

	summary, err := engine.ReconcilePayrollIntegrity(context.Background(), "bus_1", period, true)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Issues)
	assert.Equal(t, 1, summary.Fixed)
	mockDS.AssertExpectations(t)
}

func TestReconcilePayrollIntegrity_SucceededDriftReportOnly(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	period := marchPeriod()
	job := payrollJobFromSnapshot(t, "prj_1", 2000000, nil)
	job.Status = model.JobStatusSucceeded
	// Tamper with the stored hash so drift is detected.
	job.CalculationHash = "tampered"

	mockDS.On("GetPayrollJobsForPeriod", mock.Anything, "bus_1", period.Start, period.End).
		Return([]*model.Job{job}, nil)

	summary, err := engine.ReconcilePayrollIntegrity(context.Background(), "bus_1", period, true)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Issues)
	assert.Equal(t, 0, summary.Fixed)
	mockDS.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}
