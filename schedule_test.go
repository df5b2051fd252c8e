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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sibabalw/payments-app-sub003/database/mocks"
	"github.com/sibabalw/payments-app-sub003/model"
)

func TestCreateSchedule_RecurringComputesFirstRun(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	schedule := &model.Schedule{
		BusinessID:   "bus_1",
		JobType:      model.JobTypePayment,
		ScheduleType: model.ScheduleTypeRecurring,
		Frequency:    "0 9 25 * *",
		Status:       model.ScheduleStatusActive,
	}
	mockDS.On("CreateSchedule", mock.Anything, schedule).Return(schedule, nil)

	created, err := engine.CreateSchedule(context.Background(), schedule)
	assert.NoError(t, err)
	assert.NotNil(t, created.NextRunAt)
	// fixedTime is 2024-03-25 10:00 UTC, past 09:00, so the next run is in April.
	assert.Equal(t, time.Date(2024, 4, 25, 9, 0, 0, 0, time.UTC), *created.NextRunAt)
	mockDS.AssertExpectations(t)
}

func TestCreateSchedule_RecurringInvalidCron(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	_, err := engine.CreateSchedule(context.Background(), &model.Schedule{
		ScheduleType: model.ScheduleTypeRecurring,
		Frequency:    "not a cron",
	})
	assert.Error(t, err)
	mockDS.AssertNotCalled(t, "CreateSchedule", mock.Anything, mock.Anything)
}

func TestRunDueSchedules_MaterializesAndAdvances(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	schedule := &model.Schedule{
		ScheduleID:   "sch_1",
		BusinessID:   "bus_1",
		JobType:      model.JobTypePayment,
		ScheduleType: model.ScheduleTypeRecurring,
		Frequency:    "0 9 25 * *",
		PayDay:       25,
		Status:       model.ScheduleStatusActive,
	}
	recipients := []*model.ScheduleRecipient{
		{ScheduleID: "sch_1", RecipientID: "rcp_1", AmountMinorUnits: 150000},
		{ScheduleID: "sch_1", RecipientID: "rcp_2", AmountMinorUnits: 250000},
	}

	mockDS.On("GetDueSchedules", mock.Anything, fixedTime).Return([]*model.Schedule{schedule}, nil)
	mockDS.On("GetScheduleRecipients", mock.Anything, "sch_1").Return(recipients, nil)
	// Pay day 25 pays for the month just completed, February here.
	mockDS.On("CreateJob", mock.Anything, mock.MatchedBy(func(j *model.Job) bool {
		return j.ScheduleID == "sch_1" &&
			j.PeriodStart.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) &&
			j.PeriodEnd.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))
	})).Return(pendingPaymentJob("pyj_new"), nil).Times(2)
	mockDS.On("AdvanceSchedule", mock.Anything, "sch_1",
		mock.MatchedBy(func(next *time.Time) bool {
			return next != nil && next.Equal(time.Date(2024, 4, 25, 9, 0, 0, 0, time.UTC))
		}), fixedTime, model.ScheduleStatusActive).Return(nil)

	summary, err := engine.RunDueSchedules(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	mockDS.AssertExpectations(t)
}

func TestRunDueSchedules_OneTimeScheduleRetired(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	schedule := &model.Schedule{
		ScheduleID:   "sch_1",
		BusinessID:   "bus_1",
		JobType:      model.JobTypePayment,
		ScheduleType: model.ScheduleTypeOneTime,
		Status:       model.ScheduleStatusActive,
	}

	mockDS.On("GetDueSchedules", mock.Anything, fixedTime).Return([]*model.Schedule{schedule}, nil)
	mockDS.On("GetScheduleRecipients", mock.Anything, "sch_1").
		Return([]*model.ScheduleRecipient{{ScheduleID: "sch_1", RecipientID: "rcp_1", AmountMinorUnits: 100000}}, nil)
	mockDS.On("CreateJob", mock.Anything, mock.AnythingOfType("*model.Job")).
		Return(pendingPaymentJob("pyj_new"), nil)
	mockDS.On("AdvanceSchedule", mock.Anything, "sch_1", (*time.Time)(nil), fixedTime, model.ScheduleStatusCancelled).
		Return(nil)

	summary, err := engine.RunDueSchedules(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	mockDS.AssertExpectations(t)
}

func TestRunDueSchedules_PayrollJobCarriesCalculation(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	snapshot, err := json.Marshal(model.EmployeeSnapshotV1{
		EmployeeID:           "emp_1",
		FullName:             "Naledi Dlamini",
		BaseSalaryMinorUnits: 2000000,
	})
	assert.NoError(t, err)

	schedule := &model.Schedule{
		ScheduleID:   "sch_1",
		BusinessID:   "bus_1",
		JobType:      model.JobTypePayroll,
		ScheduleType: model.ScheduleTypeRecurring,
		Frequency:    "0 9 1 * *",
		PayDay:       1,
		Status:       model.ScheduleStatusActive,
	}

	mockDS.On("GetDueSchedules", mock.Anything, fixedTime).Return([]*model.Schedule{schedule}, nil)
	mockDS.On("GetScheduleRecipients", mock.Anything, "sch_1").
		Return([]*model.ScheduleRecipient{{ScheduleID: "sch_1", EmployeeID: "emp_1", Snapshot: snapshot}}, nil)
	// 18% PAYE + 1% UIF + 1% SDL on 20000.00 gross leaves 16000.00 net.
	// Pay day 1 pays the current month in advance.
	mockDS.On("CreateJob", mock.Anything, mock.MatchedBy(func(j *model.Job) bool {
		return j.JobType == model.JobTypePayroll &&
			j.GrossSalaryMinorUnits == 2000000 &&
			j.NetSalaryMinorUnits == 1600000 &&
			j.AmountMinorUnits == 1600000 &&
			j.PeriodStart.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) &&
			j.PeriodEnd.Equal(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	})).Return(pendingPaymentJob("prj_new"), nil)
	mockDS.On("AdvanceSchedule", mock.Anything, "sch_1", mock.AnythingOfType("*time.Time"), fixedTime, model.ScheduleStatusActive).
		Return(nil)

	summary, err := engine.RunDueSchedules(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	mockDS.AssertExpectations(t)
}

func TestRunDueSchedules_BrokenScheduleDoesNotBlockOthers(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	broken := &model.Schedule{
		ScheduleID:   "sch_broken",
		ScheduleType: model.ScheduleTypeRecurring,
		Frequency:    "garbage",
		Status:       model.ScheduleStatusActive,
	}
	healthy := &model.Schedule{
		ScheduleID:   "sch_ok",
		BusinessID:   "bus_1",
		JobType:      model.JobTypePayment,
		ScheduleType: model.ScheduleTypeOneTime,
		Status:       model.ScheduleStatusActive,
	}

	mockDS.On("GetDueSchedules", mock.Anything, fixedTime).Return([]*model.Schedule{broken, healthy}, nil)
	mockDS.On("GetScheduleRecipients", mock.Anything, "sch_broken").
		Return([]*model.ScheduleRecipient{}, nil)
	mockDS.On("GetScheduleRecipients", mock.Anything, "sch_ok").
		Return([]*model.ScheduleRecipient{{ScheduleID: "sch_ok", RecipientID: "rcp_1", AmountMinorUnits: 100000}}, nil)
	mockDS.On("CreateJob", mock.Anything, mock.AnythingOfType("*model.Job")).
		Return(pendingPaymentJob("pyj_new"), nil)
	mockDS.On("AdvanceSchedule", mock.Anything, "sch_ok", (*time.Time)(nil), fixedTime, model.ScheduleStatusCancelled).
		Return(nil)

	summary, err := engine.RunDueSchedules(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	mockDS.AssertExpectations(t)
}
