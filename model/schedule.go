package model

import (
	"time"

	"github.com/robfig/cron/v3"
)

const (
	ScheduleTypeRecurring = "recurring"
	ScheduleTypeOneTime   = "one_time"
)

const (
	ScheduleStatusActive    = "active"
	ScheduleStatusPaused    = "paused"
	ScheduleStatusCancelled = "cancelled"
)

// Schedule is a recurring or one-time definition of fund movement. Jobs are
// materialized only at execution time, never at schedule creation.
type Schedule struct {
	ID           int64  `json:"-"`
	ScheduleID   string `json:"schedule_id"`
	BusinessID   string `json:"business_id"`
	JobType      string `json:"job_type"`
	ScheduleType string `json:"schedule_type"`
	// Frequency is a cron expression for recurring schedules.
	Frequency string `json:"frequency,omitempty"`
	// PayDay is the day of month the schedule pays on; drives the pay-period
	// rule for monthly payroll.
	PayDay    int                    `json:"pay_day,omitempty"`
	NextRunAt *time.Time             `json:"next_run_at,omitempty"`
	LastRunAt *time.Time             `json:"last_run_at,omitempty"`
	Status    string                 `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	MetaData  map[string]interface{} `json:"meta_data,omitempty"`
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextOccurrence computes the next run time of a recurring schedule strictly
// after the given time.
func (s *Schedule) NextOccurrence(after time.Time) (time.Time, error) {
	cronSchedule, err := cronParser.Parse(s.Frequency)
	if err != nil {
		return time.Time{}, err
	}
	return cronSchedule.Next(after), nil
}

// ScheduleRecipient is one enrolled recipient or employee of a schedule. The
// snapshot is captured into each materialized job at execution time, never
// earlier.
type ScheduleRecipient struct {
	ID               int64  `json:"-"`
	ScheduleID       string `json:"schedule_id"`
	RecipientID      string `json:"recipient_id,omitempty"`
	EmployeeID       string `json:"employee_id,omitempty"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Snapshot         []byte `json:"-"`
}

// PayPeriod is the inclusive calendar range a job pays for.
type PayPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CalculatePayPeriod resolves the pay period for an execution date.
//
// Monthly schedules paying on day 1 pay for the current month in advance; any
// other pay day pays for the month just completed. One-time schedules pay for
// the month containing their execution date. The day-1 asymmetry is load
// bearing and must not be simplified.
func CalculatePayPeriod(s *Schedule, executionDate time.Time) PayPeriod {
	if s.ScheduleType == ScheduleTypeOneTime {
		return monthOf(executionDate)
	}
	payDay := s.PayDay
	if payDay == 0 {
		payDay = executionDate.Day()
	}
	if payDay == 1 {
		return monthOf(executionDate)
	}
	firstOfCurrent := time.Date(executionDate.Year(), executionDate.Month(), 1, 0, 0, 0, 0, executionDate.Location())
	return monthOf(firstOfCurrent.AddDate(0, -1, 0))
}

func monthOf(t time.Time) PayPeriod {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return PayPeriod{
		Start: start,
		End:   start.AddDate(0, 1, -1),
	}
}
