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

func (d Datasource) RecordDeposit(ctx context.Context, deposit *model.EscrowDeposit) (*model.EscrowDeposit, error) {
	if deposit.AmountMinorUnits <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Deposit amount must be positive", nil)
	}
	if deposit.FeeAmountMinorUnits < 0 || deposit.FeeAmountMinorUnits > deposit.AmountMinorUnits {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Deposit fee must be between zero and the deposit amount", nil)
	}

	metaDataJSON, err := json.Marshal(deposit.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	deposit.DepositID = model.GenerateUUIDWithSuffix("dep")
	deposit.Normalize()
	if deposit.Status == "" {
		deposit.Status = model.DepositStatusPending
	}
	deposit.CreatedAt = time.Now()

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO escrow_deposits
			(deposit_id, business_id, amount_minor_units, fee_amount_minor_units,
			 authorized_amount_minor_units, currency, status, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, deposit.DepositID, deposit.BusinessID, deposit.AmountMinorUnits,
		deposit.FeeAmountMinorUnits, deposit.AuthorizedAmountMinorUnits,
		deposit.Currency, deposit.Status, metaDataJSON)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "foreign_key_violation" {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Business not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record deposit", err)
	}

	return deposit, nil
}

func (d Datasource) GetDeposit(ctx context.Context, id string) (*model.EscrowDeposit, error) {
	deposit := model.EscrowDeposit{}
	var confirmedAt, feeReleasedAt, principalReturnedAt sql.NullTime

	row := d.Conn.QueryRowContext(ctx, `
		SELECT deposit_id, business_id, amount_minor_units, fee_amount_minor_units,
			authorized_amount_minor_units, returned_amount_minor_units, currency, status,
			confirmed_at, fee_released_at, principal_returned_at, created_at
		FROM escrow_deposits
		WHERE deposit_id = $1
	`, id)

	err := row.Scan(&deposit.DepositID, &deposit.BusinessID, &deposit.AmountMinorUnits,
		&deposit.FeeAmountMinorUnits, &deposit.AuthorizedAmountMinorUnits,
		&deposit.ReturnedAmountMinorUnits, &deposit.Currency, &deposit.Status,
		&confirmedAt, &feeReleasedAt, &principalReturnedAt, &deposit.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Deposit not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve deposit", err)
	}
	if confirmedAt.Valid {
		deposit.ConfirmedAt = &confirmedAt.Time
	}
	if feeReleasedAt.Valid {
		deposit.FeeReleasedAt = &feeReleasedAt.Time
	}
	if principalReturnedAt.Valid {
		deposit.PrincipalReturnedAt = &principalReturnedAt.Time
	}

	return &deposit, nil
}

func (d Datasource) ConfirmDeposit(ctx context.Context, id string, confirmedAt time.Time) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE escrow_deposits
		SET status = 'confirmed', confirmed_at = $1
		WHERE deposit_id = $2 AND status = 'pending'
	`, confirmedAt, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to confirm deposit", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Deposit is not pending confirmation", nil)
	}
	return nil
}

// ReleaseDepositFee stamps the fee-release timestamp. The fee and the
// principal have independent lifecycles, so this never touches status.
func (d Datasource) ReleaseDepositFee(ctx context.Context, id string, releasedAt time.Time) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE escrow_deposits
		SET fee_released_at = $1
		WHERE deposit_id = $2 AND fee_released_at IS NULL
	`, releasedAt, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release deposit fee", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Deposit fee already released", nil)
	}
	return nil
}

func (d Datasource) ReturnDepositPrincipal(ctx context.Context, id string, amountMinorUnits int64, returnedAt time.Time) error {
	if amountMinorUnits <= 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Returned amount must be positive", nil)
	}
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE escrow_deposits
		SET returned_amount_minor_units = returned_amount_minor_units + $1,
			principal_returned_at = $2
		WHERE deposit_id = $3
		  AND returned_amount_minor_units + $1 <= authorized_amount_minor_units
	`, amountMinorUnits, returnedAt, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to return deposit principal", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Return exceeds authorized amount or deposit not found", nil)
	}
	return nil
}

func (d Datasource) SumConfirmedAuthorized(ctx context.Context, businessID string) (int64, error) {
	var total int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(authorized_amount_minor_units), 0)
		FROM escrow_deposits
		WHERE business_id = $1 AND status IN ('confirmed', 'completed')
	`, businessID).Scan(&total)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum confirmed deposits", err)
	}
	return total, nil
}

// SumPendingAuthorized totals deposits that are recorded but not yet
// confirmed. They never count toward the authoritative balance; callers use
// this only for the optimistic includePending view.
func (d Datasource) SumPendingAuthorized(ctx context.Context, businessID string) (int64, error) {
	var total int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(authorized_amount_minor_units), 0)
		FROM escrow_deposits
		WHERE business_id = $1 AND status = 'pending'
	`, businessID).Scan(&total)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum pending deposits", err)
	}
	return total, nil
}

func (d Datasource) SumReturnedPrincipal(ctx context.Context, businessID string) (int64, error) {
	var total int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(returned_amount_minor_units), 0)
		FROM escrow_deposits
		WHERE business_id = $1
	`, businessID).Scan(&total)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum returned principal", err)
	}
	return total, nil
}
