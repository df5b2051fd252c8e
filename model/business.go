package model

import "time"

// Business owns escrow deposits, schedules, and jobs. Everything else in the
// engine is keyed by BusinessID.
type Business struct {
	ID         int64                  `json:"-"`
	BusinessID string                 `json:"business_id"`
	Name       string                 `json:"name"`
	Currency   string                 `json:"currency"`
	CreatedAt  time.Time              `json:"created_at"`
	MetaData   map[string]interface{} `json:"meta_data,omitempty"`
}

// EscrowBalance is the stored (cached) balance row for a business. It is an
// optimization; reconciliation periodically checks it against the
// authoritative recalculation and the ledger.
type EscrowBalance struct {
	BusinessID        string    `json:"business_id"`
	BalanceMinorUnits int64     `json:"balance_minor_units"`
	Version           int       `json:"version"`
	UpdatedAt         time.Time `json:"updated_at"`
}
