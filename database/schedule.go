package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

func (d Datasource) CreateSchedule(ctx context.Context, s *model.Schedule) (*model.Schedule, error) {
	metaDataJSON, err := json.Marshal(s.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	s.ScheduleID = model.GenerateUUIDWithSuffix("sch")
	if s.Status == "" {
		s.Status = model.ScheduleStatusActive
	}
	s.CreatedAt = time.Now()

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO schedules
			(schedule_id, business_id, job_type, schedule_type, frequency,
			 pay_day, next_run_at, status, meta_data)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
	`, s.ScheduleID, s.BusinessID, s.JobType, s.ScheduleType, s.Frequency,
		s.PayDay, s.NextRunAt, s.Status, metaDataJSON)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "foreign_key_violation" {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Business not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create schedule", err)
	}

	return s, nil
}

func (d Datasource) GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT schedule_id, business_id, job_type, schedule_type,
			COALESCE(frequency, ''), pay_day, next_run_at, last_run_at,
			status, created_at
		FROM schedules
		WHERE schedule_id = $1
	`, scheduleID)

	s, err := scanSchedule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Schedule not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve schedule", err)
	}
	return s, nil
}

// GetDueSchedules returns active schedules whose next_run_at has passed,
// oldest first. One-time schedules with no next_run_at are never due.
func (d Datasource) GetDueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT schedule_id, business_id, job_type, schedule_type,
			COALESCE(frequency, ''), pay_day, next_run_at, last_run_at,
			status, created_at
		FROM schedules
		WHERE status = 'active' AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at ASC
	`, now)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve due schedules", err)
	}
	defer rows.Close()

	schedules := []*model.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan schedule data", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over schedules", err)
	}
	return schedules, nil
}

// AdvanceSchedule records a completed run. A nil nextRunAt clears the
// schedule's due time, which is how one-time schedules retire.
func (d Datasource) AdvanceSchedule(ctx context.Context, scheduleID string, nextRunAt *time.Time, lastRunAt time.Time, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE schedules
		SET next_run_at = $1, last_run_at = $2, status = $3
		WHERE schedule_id = $4
	`, nextRunAt, lastRunAt, status, scheduleID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to advance schedule", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Schedule not found", nil)
	}
	return nil
}

func (d Datasource) GetScheduleRecipients(ctx context.Context, scheduleID string) ([]*model.ScheduleRecipient, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, schedule_id, COALESCE(recipient_id, ''), COALESCE(employee_id, ''),
			amount_minor_units, snapshot
		FROM schedule_recipients
		WHERE schedule_id = $1
		ORDER BY id ASC
	`, scheduleID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve schedule recipients", err)
	}
	defer rows.Close()

	recipients := []*model.ScheduleRecipient{}
	for rows.Next() {
		r := model.ScheduleRecipient{}
		var snapshot []byte
		err = rows.Scan(&r.ID, &r.ScheduleID, &r.RecipientID, &r.EmployeeID,
			&r.AmountMinorUnits, &snapshot)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan recipient data", err)
		}
		r.Snapshot = snapshot
		recipients = append(recipients, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over recipients", err)
	}
	return recipients, nil
}

func scanSchedule(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Schedule, error) {
	s := model.Schedule{}
	var nextRunAt, lastRunAt sql.NullTime
	err := scanner.Scan(&s.ScheduleID, &s.BusinessID, &s.JobType, &s.ScheduleType,
		&s.Frequency, &s.PayDay, &nextRunAt, &lastRunAt, &s.Status, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if nextRunAt.Valid {
		s.NextRunAt = &nextRunAt.Time
	}
	if lastRunAt.Valid {
		s.LastRunAt = &lastRunAt.Time
	}
	return &s, nil
}
