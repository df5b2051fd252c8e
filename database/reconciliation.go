package database

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

func (d Datasource) RecordDiscrepancy(ctx context.Context, discrepancy *model.ReconciliationDiscrepancy) (*model.ReconciliationDiscrepancy, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Saving discrepancy to db")
	defer span.End()

	discrepancy.DiscrepancyID = model.GenerateUUIDWithSuffix("disc")
	if discrepancy.Status == "" {
		discrepancy.Status = model.DiscrepancyStatusOpen
	}
	discrepancy.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO reconciliation_discrepancies
			(discrepancy_id, business_id, stored_minor_units, calculated_minor_units,
			 ledger_minor_units, difference_minor_units, status, notes, auto_fixed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
	`, discrepancy.DiscrepancyID, discrepancy.BusinessID, discrepancy.StoredMinorUnits,
		discrepancy.CalculatedMinorUnits, discrepancy.LedgerMinorUnits,
		discrepancy.DifferenceMinorUnits, discrepancy.Status, discrepancy.Notes,
		discrepancy.AutoFixed)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record discrepancy", err)
	}

	return discrepancy, nil
}

func (d Datasource) GetOpenDiscrepancies(ctx context.Context, businessID string) ([]*model.ReconciliationDiscrepancy, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT discrepancy_id, business_id, stored_minor_units, calculated_minor_units,
			ledger_minor_units, difference_minor_units, status,
			COALESCE(approved_by, ''), COALESCE(notes, ''), auto_fixed, created_at
		FROM reconciliation_discrepancies
		WHERE status = 'open' AND ($1 = '' OR business_id = $1)
		ORDER BY created_at ASC
	`, businessID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve open discrepancies", err)
	}
	defer rows.Close()

	discrepancies := []*model.ReconciliationDiscrepancy{}
	for rows.Next() {
		disc := model.ReconciliationDiscrepancy{}
		err = rows.Scan(&disc.DiscrepancyID, &disc.BusinessID, &disc.StoredMinorUnits,
			&disc.CalculatedMinorUnits, &disc.LedgerMinorUnits, &disc.DifferenceMinorUnits,
			&disc.Status, &disc.ApprovedBy, &disc.Notes, &disc.AutoFixed, &disc.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan discrepancy data", err)
		}
		discrepancies = append(discrepancies, &disc)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over discrepancies", err)
	}
	return discrepancies, nil
}

// UpdateDiscrepancyStatus advances a discrepancy through its review workflow.
// Approval stamps the approver; resolution and compensation stamp resolved_at.
func (d Datasource) UpdateDiscrepancyStatus(ctx context.Context, discrepancyID, status, approvedBy string, at time.Time) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE reconciliation_discrepancies
		SET status = $1,
			approved_by = COALESCE(NULLIF($2, ''), approved_by),
			approved_at = CASE WHEN $1 = 'approved' THEN $3 ELSE approved_at END,
			resolved_at = CASE WHEN $1 IN ('resolved', 'compensated') THEN $3 ELSE resolved_at END
		WHERE discrepancy_id = $4
	`, status, approvedBy, at, discrepancyID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update discrepancy", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Discrepancy not found", nil)
	}
	return nil
}
