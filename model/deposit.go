package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DepositStatusPending   = "pending"
	DepositStatusConfirmed = "confirmed"
	DepositStatusCompleted = "completed"
)

// EscrowDeposit is a business-owned cash inflow. AuthorizedAmountMinorUnits is
// the spendable portion net of the platform fee. Fee release and principal
// return are independent lifecycle events recorded by their timestamps, not
// inferred from Status.
type EscrowDeposit struct {
	ID                         int64                  `json:"-"`
	DepositID                  string                 `json:"deposit_id"`
	BusinessID                 string                 `json:"business_id"`
	AmountMinorUnits           int64                  `json:"amount_minor_units"`
	FeeAmountMinorUnits        int64                  `json:"fee_amount_minor_units"`
	AuthorizedAmountMinorUnits int64                  `json:"authorized_amount_minor_units"`
	ReturnedAmountMinorUnits   int64                  `json:"returned_amount_minor_units"`
	Currency                   string                 `json:"currency"`
	Status                     string                 `json:"status"`
	ConfirmedAt                *time.Time             `json:"confirmed_at,omitempty"`
	FeeReleasedAt              *time.Time             `json:"fee_released_at,omitempty"`
	PrincipalReturnedAt        *time.Time             `json:"principal_returned_at,omitempty"`
	CreatedAt                  time.Time              `json:"created_at"`
	MetaData                   map[string]interface{} `json:"meta_data,omitempty"`
}

// Normalize derives the authorized amount from amount and fee.
func (d *EscrowDeposit) Normalize() {
	d.AuthorizedAmountMinorUnits = d.AmountMinorUnits - d.FeeAmountMinorUnits
}

// ContributesToBalance reports whether the deposit funds the available escrow
// balance. Only confirmed and completed deposits do.
func (d *EscrowDeposit) ContributesToBalance() bool {
	return d.Status == DepositStatusConfirmed || d.Status == DepositStatusCompleted
}

// AuthorizedAmount returns the derived decimal authorized amount.
func (d *EscrowDeposit) AuthorizedAmount() decimal.Decimal {
	return MinorUnitsToDecimal(d.AuthorizedAmountMinorUnits)
}
