package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

func (d Datasource) CreateSettlementWindow(ctx context.Context, window *model.SettlementWindow) (*model.SettlementWindow, error) {
	if window.WindowEnd.Before(window.WindowStart) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Window end precedes window start", nil)
	}

	window.WindowID = model.GenerateUUIDWithSuffix("win")
	if window.Status == "" {
		window.Status = model.WindowStatusOpen
	}
	window.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO settlement_windows
			(window_id, window_type, window_start, window_end, status)
		VALUES ($1, $2, $3, $4, $5)
	`, window.WindowID, window.WindowType, window.WindowStart, window.WindowEnd, window.Status)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create settlement window", err)
	}

	return window, nil
}

func (d Datasource) GetSettlementWindow(ctx context.Context, windowID string) (*model.SettlementWindow, error) {
	w := model.SettlementWindow{}
	var processedAt sql.NullTime

	err := d.Conn.QueryRowContext(ctx, `
		SELECT window_id, window_type, window_start, window_end, status,
			transaction_count, total_amount_minor_units, processed_at, created_at
		FROM settlement_windows
		WHERE window_id = $1
	`, windowID).Scan(&w.WindowID, &w.WindowType, &w.WindowStart, &w.WindowEnd,
		&w.Status, &w.TransactionCount, &w.TotalAmountMinorUnits, &processedAt, &w.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Settlement window not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve settlement window", err)
	}
	if processedAt.Valid {
		w.ProcessedAt = &processedAt.Time
	}
	return &w, nil
}

// UpdateWindowStatus writes the window's processing outcome. The totals are
// recomputed by the caller from the window's jobs on every pass, so a resumed
// run overwrites any partial totals from an interrupted one.
func (d Datasource) UpdateWindowStatus(ctx context.Context, windowID, status string, transactionCount int, totalAmountMinorUnits int64, processedAt *time.Time) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE settlement_windows
		SET status = $1,
			transaction_count = $2,
			total_amount_minor_units = $3,
			processed_at = COALESCE($4, processed_at)
		WHERE window_id = $5
	`, status, transactionCount, totalAmountMinorUnits, processedAt, windowID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update settlement window", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Settlement window not found", nil)
	}
	return nil
}
