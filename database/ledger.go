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

func (d Datasource) CreateLedgerAccount(ctx context.Context, account model.LedgerAccount) (model.LedgerAccount, error) {
	metaDataJSON, err := json.Marshal(account.MetaData)
	if err != nil {
		return model.LedgerAccount{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	account.AccountID = model.GenerateUUIDWithSuffix("acc")
	account.CreatedAt = time.Now()

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO ledger_accounts (account_id, business_id, account_type, currency, meta_data)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
	`, account.AccountID, account.BusinessID, account.AccountType, account.Currency, metaDataJSON)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return model.LedgerAccount{}, apierror.NewAPIError(apierror.ErrConflict, "Ledger account already exists", err)
		}
		return model.LedgerAccount{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create ledger account", err)
	}

	return account, nil
}

func (d Datasource) GetLedgerAccount(ctx context.Context, id string) (*model.LedgerAccount, error) {
	account := model.LedgerAccount{}
	var businessID sql.NullString

	row := d.Conn.QueryRowContext(ctx, `
		SELECT account_id, COALESCE(business_id, ''), account_type, currency, created_at
		FROM ledger_accounts
		WHERE account_id = $1
	`, id)

	err := row.Scan(&account.AccountID, &businessID, &account.AccountType, &account.Currency, &account.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Ledger account not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger account", err)
	}
	account.BusinessID = businessID.String

	return &account, nil
}

func (d Datasource) GetLedgerAccountByType(ctx context.Context, businessID, accountType string) (*model.LedgerAccount, error) {
	account := model.LedgerAccount{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT account_id, COALESCE(business_id, ''), account_type, currency, created_at
		FROM ledger_accounts
		WHERE COALESCE(business_id, '') = $1 AND account_type = $2
	`, businessID, accountType)

	err := row.Scan(&account.AccountID, &account.BusinessID, &account.AccountType, &account.Currency, &account.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Ledger account not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger account", err)
	}

	return &account, nil
}

// RecordLedgerEntry appends one leg to the journal. The sequence number is
// assigned from the ledger-wide counter inside the insert so ordering is
// decided by the database, not the caller.
func (d Datasource) RecordLedgerEntry(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
	account, err := d.GetLedgerAccount(ctx, entry.AccountID)
	if err != nil {
		return nil, err
	}
	if err := entry.Validate(account); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidEntry, err.Error(), err)
	}

	metaDataJSON, err := json.Marshal(entry.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	entry.EntryID = model.GenerateUUIDWithSuffix("lde")
	entry.BusinessID = account.BusinessID
	entry.PostingState = model.PostingPending
	entry.CreatedAt = time.Now()
	if entry.CorrelationID == "" {
		entry.CorrelationID = model.GenerateUUIDWithSuffix("cor")
	}

	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO ledger_entries
			(entry_id, account_id, business_id, transaction_type, amount_minor_units,
			 currency, correlation_id, sequence_number, posting_state, description,
			 reversal_of, meta_data)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, nextval('ledger_sequence'), $8, $9, NULLIF($10, ''), $11)
		RETURNING sequence_number
	`, entry.EntryID, entry.AccountID, entry.BusinessID, entry.TransactionType,
		entry.AmountMinorUnits, entry.Currency, entry.CorrelationID,
		entry.PostingState, entry.Description, entry.ReversalOf, metaDataJSON).Scan(&entry.SequenceNumber)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record ledger entry", err)
	}

	return entry, nil
}

func (d Datasource) GetLedgerEntry(ctx context.Context, entryID string) (*model.LedgerEntry, error) {
	entry := model.LedgerEntry{}
	var businessID, description, reversalOf, reversedBy sql.NullString

	row := d.Conn.QueryRowContext(ctx, `
		SELECT entry_id, account_id, business_id, transaction_type, amount_minor_units,
			currency, correlation_id, sequence_number, posting_state, description,
			reversal_of, reversed_by, created_at
		FROM ledger_entries
		WHERE entry_id = $1
	`, entryID)

	err := row.Scan(&entry.EntryID, &entry.AccountID, &businessID, &entry.TransactionType,
		&entry.AmountMinorUnits, &entry.Currency, &entry.CorrelationID, &entry.SequenceNumber,
		&entry.PostingState, &description, &reversalOf, &reversedBy, &entry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Ledger entry not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger entry", err)
	}
	entry.BusinessID = businessID.String
	entry.Description = description.String
	entry.ReversalOf = reversalOf.String
	entry.ReversedBy = reversedBy.String

	return &entry, nil
}

// MarkEntryPosted transitions PENDING -> POSTED. Calling it on an entry that
// is already POSTED is a no-op, so retried workers stay safe.
func (d Datasource) MarkEntryPosted(ctx context.Context, entryID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ledger_entries
		SET posting_state = $1
		WHERE entry_id = $2 AND posting_state IN ($1, $3)
	`, model.PostingPosted, entryID, model.PostingPending)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark entry posted", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rowsAffected == 0 {
		entry, getErr := d.GetLedgerEntry(ctx, entryID)
		if getErr != nil {
			return getErr
		}
		return apierror.NewAPIError(apierror.ErrInvalidEntry,
			"Entry cannot be posted from state "+entry.PostingState, nil)
	}
	return nil
}

// ReverseEntry creates a new entry with the opposite transaction type in the
// same correlation group and links both directions in a single database
// transaction. The original's reversed_by is set atomically with the
// reversal's creation.
func (d Datasource) ReverseEntry(ctx context.Context, entryID, reason string) (*model.LedgerEntry, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	original := model.LedgerEntry{}
	var reversedBy sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT entry_id, account_id, COALESCE(business_id, ''), transaction_type,
			amount_minor_units, currency, correlation_id, posting_state, reversed_by
		FROM ledger_entries
		WHERE entry_id = $1
		FOR UPDATE
	`, entryID).Scan(&original.EntryID, &original.AccountID, &original.BusinessID,
		&original.TransactionType, &original.AmountMinorUnits, &original.Currency,
		&original.CorrelationID, &original.PostingState, &reversedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Ledger entry not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load entry for reversal", err)
	}

	if reversedBy.Valid && reversedBy.String != "" {
		return nil, apierror.NewAPIError(apierror.ErrAlreadyReversed,
			"Entry "+entryID+" has already been reversed by "+reversedBy.String, nil)
	}
	// Only a posted entry has taken effect; a PENDING leg is discarded by
	// never posting it, not by reversal.
	if original.PostingState != model.PostingPosted {
		return nil, apierror.NewAPIError(apierror.ErrInvalidEntry,
			"Entry "+entryID+" cannot be reversed from state "+original.PostingState, nil)
	}

	reversal := &model.LedgerEntry{
		EntryID:          model.GenerateUUIDWithSuffix("lde"),
		AccountID:        original.AccountID,
		BusinessID:       original.BusinessID,
		TransactionType:  model.OppositeTransactionType(original.TransactionType),
		AmountMinorUnits: original.AmountMinorUnits,
		Currency:         original.Currency,
		CorrelationID:    original.CorrelationID,
		PostingState:     model.PostingPosted,
		Description:      reason,
		ReversalOf:       original.EntryID,
		CreatedAt:        time.Now(),
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries
			(entry_id, account_id, business_id, transaction_type, amount_minor_units,
			 currency, correlation_id, sequence_number, posting_state, description, reversal_of)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, nextval('ledger_sequence'), $8, $9, $10)
		RETURNING sequence_number
	`, reversal.EntryID, reversal.AccountID, reversal.BusinessID, reversal.TransactionType,
		reversal.AmountMinorUnits, reversal.Currency, reversal.CorrelationID,
		reversal.PostingState, reversal.Description, reversal.ReversalOf).Scan(&reversal.SequenceNumber)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert reversal entry", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET reversed_by = $1, posting_state = $2
		WHERE entry_id = $3
	`, reversal.EntryID, model.PostingReversed, original.EntryID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to link reversal", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit reversal", err)
	}

	return reversal, nil
}

// GetLedgerBalance derives a balance from the journal alone: credits minus
// debits for the business account type. Used by reconciliation as an
// independent source. Reversed originals still count; their reversal entry
// carries the offset, so only PENDING legs are excluded.
func (d Datasource) GetLedgerBalance(ctx context.Context, businessID, accountType string) (int64, error) {
	var balance int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			CASE WHEN e.transaction_type = 'CREDIT' THEN e.amount_minor_units
			     ELSE -e.amount_minor_units END), 0)
		FROM ledger_entries e
		JOIN ledger_accounts a ON a.account_id = e.account_id
		WHERE COALESCE(a.business_id, '') = $1
		  AND a.account_type = $2
		  AND e.posting_state IN ('POSTED', 'REVERSED')
	`, businessID, accountType).Scan(&balance)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to derive ledger balance", err)
	}
	return balance, nil
}
