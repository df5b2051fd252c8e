package model

import "time"

const (
	WindowStatusOpen       = "open"
	WindowStatusProcessing = "processing"
	WindowStatusProcessed  = "processed"
)

// SettlementWindow is a time-boxed batch of due jobs processed as a unit.
// Re-processing a window is safe: job status is the resumption marker and a
// processed window short-circuits.
type SettlementWindow struct {
	ID                    int64      `json:"-"`
	WindowID              string     `json:"window_id"`
	WindowType            string     `json:"window_type"`
	WindowStart           time.Time  `json:"window_start"`
	WindowEnd             time.Time  `json:"window_end"`
	Status                string     `json:"status"`
	TransactionCount      int        `json:"transaction_count"`
	TotalAmountMinorUnits int64      `json:"total_amount_minor_units"`
	ProcessedAt           *time.Time `json:"processed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}
