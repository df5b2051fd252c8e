package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

func (d Datasource) GetStoredBalance(ctx context.Context, businessID string) (*model.EscrowBalance, error) {
	balance := model.EscrowBalance{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT business_id, balance_minor_units, version, updated_at
		FROM escrow_balances
		WHERE business_id = $1
	`, businessID)

	err := row.Scan(&balance.BusinessID, &balance.BalanceMinorUnits, &balance.Version, &balance.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Stored balance not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stored balance", err)
	}

	return &balance, nil
}

// UpdateStoredBalance upserts the cached balance row and bumps its version.
func (d Datasource) UpdateStoredBalance(ctx context.Context, businessID string, balanceMinorUnits int64) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO escrow_balances (business_id, balance_minor_units, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (business_id) DO UPDATE
		SET balance_minor_units = EXCLUDED.balance_minor_units,
			version = escrow_balances.version + 1,
			updated_at = NOW()
	`, businessID, balanceMinorUnits)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update stored balance", err)
	}
	return nil
}

// RecordBalanceCorrection writes the audit row that must accompany every
// stored-balance overwrite. Corrections are never silent.
func (d Datasource) RecordBalanceCorrection(ctx context.Context, businessID string, previousMinorUnits, correctedMinorUnits int64, reason string) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO balance_corrections (business_id, previous_minor_units, corrected_minor_units, reason)
		VALUES ($1, $2, $3, $4)
	`, businessID, previousMinorUnits, correctedMinorUnits, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record balance correction", err)
	}
	return nil
}

func (d Datasource) CreateBalanceSnapshot(ctx context.Context, s *model.BalanceSnapshot) (*model.BalanceSnapshot, error) {
	s.SnapshotID = model.GenerateUUIDWithSuffix("snp")
	s.Checksum = s.ComputeChecksum()
	s.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO balance_snapshots
			(snapshot_id, business_id, account_type, snapshot_date,
			 balance_minor_units, sequence_number, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.SnapshotID, s.BusinessID, s.AccountType, s.SnapshotDate,
		s.BalanceMinorUnits, s.SequenceNumber, s.Checksum)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Snapshot already exists for this business, account type, and date", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create balance snapshot", err)
	}

	return s, nil
}

func (d Datasource) GetLatestSnapshot(ctx context.Context, businessID, accountType string) (*model.BalanceSnapshot, error) {
	s := model.BalanceSnapshot{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT snapshot_id, business_id, account_type, snapshot_date,
			balance_minor_units, sequence_number, checksum, created_at
		FROM balance_snapshots
		WHERE business_id = $1 AND account_type = $2
		ORDER BY snapshot_date DESC
		LIMIT 1
	`, businessID, accountType)

	err := row.Scan(&s.SnapshotID, &s.BusinessID, &s.AccountType, &s.SnapshotDate,
		&s.BalanceMinorUnits, &s.SequenceNumber, &s.Checksum, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Balance snapshot not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve balance snapshot", err)
	}

	return &s, nil
}
