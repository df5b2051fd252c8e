package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DiscrepancyStatusOpen        = "open"
	DiscrepancyStatusApproved    = "approved"
	DiscrepancyStatusCompensated = "compensated"
	DiscrepancyStatusResolved    = "resolved"
)

// ReconciliationDiscrepancy records a detected mismatch between the stored,
// recalculated, and ledger-derived balances of a business.
type ReconciliationDiscrepancy struct {
	ID                   int64      `json:"-"`
	DiscrepancyID        string     `json:"discrepancy_id"`
	BusinessID           string     `json:"business_id"`
	StoredMinorUnits     int64      `json:"stored_minor_units"`
	CalculatedMinorUnits int64      `json:"calculated_minor_units"`
	LedgerMinorUnits     int64      `json:"ledger_minor_units"`
	DifferenceMinorUnits int64      `json:"difference_minor_units"`
	Status               string     `json:"status"`
	ApprovedBy           string     `json:"approved_by,omitempty"`
	ApprovedAt           *time.Time `json:"approved_at,omitempty"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	Notes                string     `json:"notes,omitempty"`
	AutoFixed            bool       `json:"auto_fixed"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Difference returns the derived decimal difference.
func (d *ReconciliationDiscrepancy) Difference() decimal.Decimal {
	return MinorUnitsToDecimal(d.DifferenceMinorUnits)
}

// ReconciliationSummary is the machine-readable outcome of a reconciliation
// pass, printed by the operator CLI.
type ReconciliationSummary struct {
	Processed int `json:"processed"`
	Issues    int `json:"issues"`
	Fixed     int `json:"fixed"`
	Skipped   int `json:"skipped"`
}
