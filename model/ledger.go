package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PostingPending  = "PENDING"
	PostingPosted   = "POSTED"
	PostingReversed = "REVERSED"
)

const (
	EntryDebit  = "DEBIT"
	EntryCredit = "CREDIT"
)

const (
	AccountTypeEscrow = "escrow"
	AccountTypeFee    = "fee"
	AccountTypeSystem = "system"
)

// LedgerAccount is the owner of one side of a double entry. System accounts
// have an empty BusinessID.
type LedgerAccount struct {
	ID          int64                  `json:"-"`
	AccountID   string                 `json:"account_id"`
	BusinessID  string                 `json:"business_id,omitempty"`
	AccountType string                 `json:"account_type"`
	Currency    string                 `json:"currency"`
	CreatedAt   time.Time              `json:"created_at"`
	MetaData    map[string]interface{} `json:"meta_data,omitempty"`
}

// LedgerEntry is one immutable leg of a double-entry record. AmountMinorUnits
// is authoritative; Amount is derived. SequenceNumber is assigned from a
// single ledger-wide counter so global transaction order is auditable.
type LedgerEntry struct {
	ID               int64                  `json:"-"`
	EntryID          string                 `json:"entry_id"`
	AccountID        string                 `json:"account_id"`
	BusinessID       string                 `json:"business_id,omitempty"`
	TransactionType  string                 `json:"transaction_type"`
	AmountMinorUnits int64                  `json:"amount_minor_units"`
	Currency         string                 `json:"currency"`
	CorrelationID    string                 `json:"correlation_id"`
	SequenceNumber   int64                  `json:"sequence_number"`
	PostingState     string                 `json:"posting_state"`
	Description      string                 `json:"description,omitempty"`
	ReversalOf       string                 `json:"reversal_of,omitempty"`
	ReversedBy       string                 `json:"reversed_by,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
}

// Amount returns the derived decimal amount of the entry.
func (e *LedgerEntry) Amount() decimal.Decimal {
	return MinorUnitsToDecimal(e.AmountMinorUnits)
}

// Validate checks the entry against its account before it is written.
func (e *LedgerEntry) Validate(account *LedgerAccount) error {
	if e.AmountMinorUnits == 0 {
		return errors.New("ledger entry amount must be non-zero")
	}
	if e.AmountMinorUnits < 0 {
		return errors.New("ledger entry amount must be positive, direction is carried by transaction_type")
	}
	if e.TransactionType != EntryDebit && e.TransactionType != EntryCredit {
		return errors.New("ledger entry transaction_type must be DEBIT or CREDIT")
	}
	if account != nil && e.Currency != account.Currency {
		return errors.New("ledger entry currency does not match account currency")
	}
	return nil
}

// OppositeTransactionType returns the reversing direction for an entry type.
func OppositeTransactionType(transactionType string) string {
	if transactionType == EntryDebit {
		return EntryCredit
	}
	return EntryDebit
}
