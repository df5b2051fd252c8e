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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sibabalw/payments-app-sub003/database/mocks"
	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

func TestUpdateJobStatus_ValidTransition(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	job := pendingPaymentJob("pyj_1")
	mockDS.On("UpdateJobStatus", mock.Anything, "pyj_1", model.JobStatusProcessing, "", (*time.Time)(nil), 1).
		Return(nil)

	err := engine.UpdateJobStatus(context.Background(), job, model.JobStatusProcessing, "")
	assert.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.Equal(t, 2, job.Version)
	if assert.NotNil(t, job.ProcessingStartedAt) {
		assert.Equal(t, fixedTime, *job.ProcessingStartedAt)
	}
	mockDS.AssertExpectations(t)
}

func TestUpdateJobStatus_TerminalStampsProcessedAt(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	job := pendingPaymentJob("pyj_1")
	job.Status = model.JobStatusProcessing
	mockDS.On("UpdateJobStatus", mock.Anything, "pyj_1", model.JobStatusSucceeded, "", &fixedTime, 1).
		Return(nil)

	err := engine.UpdateJobStatus(context.Background(), job, model.JobStatusSucceeded, "")
	assert.NoError(t, err)
	assert.NotNil(t, job.ProcessedAt)
	assert.Equal(t, fixedTime, *job.ProcessedAt)
	mockDS.AssertExpectations(t)
}

func TestUpdateJobStatus_InvalidTransition(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	// pending -> failed is not in the transition table; a forced failure
	// must pass through processing.
	job := pendingPaymentJob("pyj_1")
	err := engine.UpdateJobStatus(context.Background(), job, model.JobStatusFailed, "forced")
	assert.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidTransition))
	mockDS.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateJobStatus_DeadLetteredJobRejected(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	job := pendingPaymentJob("pyj_1")
	job.Status = model.JobStatusFailed
	job.PermanentlyFailedAt = &fixedTime

	err := engine.UpdateJobStatus(context.Background(), job, model.JobStatusPending, "")
	assert.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidTransition))
}

func TestUpdateJobStatusWithRetry_RecoversFromConflict(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	staleJob := pendingPaymentJob("pyj_1")
	freshJob := pendingPaymentJob("pyj_1")
	freshJob.Version = 2

	mockDS.On("GetJob", mock.Anything, "pyj_1").Return(staleJob, nil).Once()
	mockDS.On("UpdateJobStatus", mock.Anything, "pyj_1", model.JobStatusProcessing, "", (*time.Time)(nil), 1).
		Return(apierror.NewAPIError(apierror.ErrOptimisticLockConflict, "Job pyj_1 was modified concurrently", nil)).Once()
	mockDS.On("GetJob", mock.Anything, "pyj_1").Return(freshJob, nil).Once()
	mockDS.On("UpdateJobStatus", mock.Anything, "pyj_1", model.JobStatusProcessing, "", (*time.Time)(nil), 2).
		Return(nil).Once()

	job, err := engine.UpdateJobStatusWithRetry(context.Background(), "pyj_1", model.JobStatusProcessing, "")
	assert.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.Equal(t, 3, job.Version)
	mockDS.AssertExpectations(t)
}

func TestUpdateJobStatusWithRetry_GivesUpWhenCompetitorWon(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	// The competing writer already completed the job, so the re-read state
	// makes the transition invalid and the retry loop stops.
	doneJob := pendingPaymentJob("pyj_1")
	doneJob.Status = model.JobStatusSucceeded
	doneJob.Version = 3

	mockDS.On("GetJob", mock.Anything, "pyj_1").Return(doneJob, nil).Once()

	_, err := engine.UpdateJobStatusWithRetry(context.Background(), "pyj_1", model.JobStatusProcessing, "")
	assert.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidTransition))
	mockDS.AssertExpectations(t)
}

func TestGuardImmutableFields(t *testing.T) {
	stored := pendingPaymentJob("pyj_1")
	incoming := pendingPaymentJob("pyj_1")
	assert.NoError(t, GuardImmutableFields(stored, incoming))

	incoming.AmountMinorUnits = 999999
	err := GuardImmutableFields(stored, incoming)
	assert.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrImmutableFieldChange))
	assert.Contains(t, err.Error(), "amount_minor_units")
}

func expectLedgerPair(mockDS *mocks.MockDataSource, businessID string) {
	escrowAccount := &model.LedgerAccount{AccountID: "acc_escrow", BusinessID: businessID, AccountType: model.AccountTypeEscrow, Currency: "ZAR"}
	systemAccount := &model.LedgerAccount{AccountID: "acc_system", AccountType: model.AccountTypeSystem, Currency: "ZAR"}
	mockDS.On("GetLedgerAccountByType", mock.Anything, businessID, model.AccountTypeEscrow).Return(escrowAccount, nil)
	mockDS.On("GetLedgerAccountByType", mock.Anything, "", model.AccountTypeSystem).Return(systemAccount, nil)
	mockDS.On("RecordLedgerEntry", mock.Anything, mock.AnythingOfType("*model.LedgerEntry")).
		Return(&model.LedgerEntry{EntryID: "lde_1", SequenceNumber: 1}, nil)
	mockDS.On("MarkEntryPosted", mock.Anything, "lde_1").Return(nil)
}

func TestExecuteJob_SucceedsAndPostsLedgerPair(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngineWithRedis(t, mockDS)

	job := pendingPaymentJob("pyj_1")
	mockDS.On("GetJob", mock.Anything, "pyj_1").Return(job, nil)
	mockDS.On("UpdateJobStatus", mock.Anything, "pyj_1", model.JobStatusProcessing, "", (*time.Time)(nil), 1).Return(nil)
	expectLedgerPair(mockDS, "bus_1")
	mockDS.On("UpdateJobStatus", mock.Anything, "pyj_1", model.JobStatusSucceeded, "", &fixedTime, 2).Return(nil)

	err := engine.ExecuteJob(context.Background(), "pyj_1")
	assert.NoError(t, err)

	gateway := engine.gateway.(*RecordingGateway)
	assert.Equal(t, []string{"pyj_1"}, gateway.Executed())
	mockDS.AssertExpectations(t)
}

func TestExecuteJob_GatewayFailureFailsJob(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngineWithRedis(t, mockDS)

	gateway := engine.gateway.(*RecordingGateway)
	gateway.FailWith(errors.New("downstream unavailable"))

	job := pendingPaymentJob("pyj_1")
	mockDS.On("GetJob", mock.Anything, "pyj_1").Return(job, nil)
	mockDS.On("UpdateJobStatus", mock.Anything, "pyj_1", model.JobStatusProcessing, "", (*time.Time)(nil), 1).Return(nil)
	mockDS.On("UpdateJobStatus", mock.Anything, "pyj_1", model.JobStatusFailed, "downstream unavailable", &fixedTime, 2).Return(nil)

	err := engine.ExecuteJob(context.Background(), "pyj_1")
	assert.Error(t, err)
	assert.Equal(t, "downstream unavailable", err.Error())
	mockDS.AssertNotCalled(t, "RecordLedgerEntry", mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

func TestExecuteJob_TerminalJobSkipped(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngineWithRedis(t, mockDS)

	job := pendingPaymentJob("pyj_1")
	job.Status = model.JobStatusSucceeded
	mockDS.On("GetJob", mock.Anything, "pyj_1").Return(job, nil)

	err := engine.ExecuteJob(context.Background(), "pyj_1")
	assert.NoError(t, err)
	mockDS.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

func TestRecalculateJob_NoOpWhenUnchanged(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngineWithRedis(t, mockDS)

	job := payrollJobFromSnapshot(t, "prj_1", 2000000, nil)
	mockDS.On("GetJob", mock.Anything, "prj_1").Return(job, nil)

	result, err := engine.RecalculateJob(context.Background(), "prj_1")
	assert.NoError(t, err)
	assert.Equal(t, job.JobID, result.JobID)
	mockDS.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

func TestRecalculateJob_ChangedFiguresSupersedeJob(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngineWithRedis(t, mockDS)

	job := payrollJobFromSnapshot(t, "prj_1", 2000000, nil)
	// Drift the stored figures so the recomputation no longer matches.
	job.NetSalaryMinorUnits += 12345
	job.AmountMinorUnits = job.NetSalaryMinorUnits

	mockDS.On("GetJob", mock.Anything, "prj_1").Return(job, nil)
	mockDS.On("CreateJob", mock.Anything, mock.AnythingOfType("*model.Job")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*model.Job).JobID = "prj_2"
		}).
		Return(&model.Job{JobID: "prj_2"}, nil)
	mockDS.On("MarkJobPermanentlyFailed", mock.Anything, "prj_1", mock.AnythingOfType("string"), fixedTime, job.Version).Return(nil)

	replacement, err := engine.RecalculateJob(context.Background(), "prj_1")
	assert.NoError(t, err)
	assert.Equal(t, "prj_2", replacement.JobID)
	assert.NotEqual(t, job.NetSalaryMinorUnits, replacement.NetSalaryMinorUnits)
	mockDS.AssertExpectations(t)
}

func TestRecalculateJob_SucceededJobRejected(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngineWithRedis(t, mockDS)

	job := payrollJobFromSnapshot(t, "prj_1", 2000000, nil)
	job.Status = model.JobStatusSucceeded
	mockDS.On("GetJob", mock.Anything, "prj_1").Return(job, nil)

	_, err := engine.RecalculateJob(context.Background(), "prj_1")
	assert.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
}

func TestRecalculateJob_PaymentJobRejected(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngineWithRedis(t, mockDS)

	mockDS.On("GetJob", mock.Anything, "pyj_1").Return(pendingPaymentJob("pyj_1"), nil)

	_, err := engine.RecalculateJob(context.Background(), "pyj_1")
	assert.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
}
