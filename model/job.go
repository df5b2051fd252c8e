package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	JobTypePayment = "payment"
	JobTypePayroll = "payroll"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

// CurrentCalculationVersion is stamped on every new job so historical
// snapshots stay decodable after the calculation logic changes.
const CurrentCalculationVersion = 1

// validJobTransitions is the static transition table for the job state
// machine. failed -> pending exists only for retry; succeeded is terminal.
var validJobTransitions = map[string][]string{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusSucceeded, JobStatusFailed},
	JobStatusFailed:     {JobStatusPending},
	JobStatusSucceeded:  {},
}

// IsValidTransition reports whether a job may move from one status to another.
func IsValidTransition(from, to string) bool {
	allowed, ok := validJobTransitions[from]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether the status ends the job lifecycle outright.
func IsTerminalStatus(status string) bool {
	return status == JobStatusSucceeded || status == JobStatusFailed
}

// Job is one unit of scheduled fund movement, payment or payroll. The
// calculation fields are fixed at creation and protected by
// DiffImmutableFields; only the operational fields may change afterwards, and
// every write is conditioned on Version.
type Job struct {
	ID         int64  `json:"-"`
	JobID      string `json:"job_id"`
	JobType    string `json:"job_type"`
	BusinessID string `json:"business_id"`
	ScheduleID string `json:"schedule_id"`
	// Immutable calculation fields.
	EmployeeID            string    `json:"employee_id,omitempty"`
	RecipientID           string    `json:"recipient_id,omitempty"`
	AmountMinorUnits      int64     `json:"amount_minor_units"`
	GrossSalaryMinorUnits int64     `json:"gross_salary_minor_units,omitempty"`
	NetSalaryMinorUnits   int64     `json:"net_salary_minor_units,omitempty"`
	Currency              string    `json:"currency"`
	TaxBreakdown          []byte    `json:"-"`
	RecipientSnapshot     []byte    `json:"-"`
	CalculationHash       string    `json:"calculation_hash"`
	CalculationVersion    int       `json:"calculation_version"`
	PeriodStart           time.Time `json:"period_start"`
	PeriodEnd             time.Time `json:"period_end"`
	// Mutable operational fields.
	Status              string                 `json:"status"`
	ErrorMessage        string                 `json:"error_message,omitempty"`
	ProcessedAt         *time.Time             `json:"processed_at,omitempty"`
	ProcessingStartedAt *time.Time             `json:"processing_started_at,omitempty"`
	EscrowDepositID     string                 `json:"escrow_deposit_id,omitempty"`
	FeeReleasedAt       *time.Time             `json:"fee_released_at,omitempty"`
	PrincipalReturnedAt *time.Time             `json:"principal_returned_at,omitempty"`
	PermanentlyFailedAt *time.Time             `json:"permanently_failed_at,omitempty"`
	RetryCount          int                    `json:"retry_count"`
	SettlementWindowID  string                 `json:"settlement_window_id,omitempty"`
	Version             int                    `json:"version"`
	CreatedAt           time.Time              `json:"created_at"`
	MetaData            map[string]interface{} `json:"meta_data,omitempty"`
}

// Amount returns the derived decimal amount of the job.
func (j *Job) Amount() decimal.Decimal {
	return MinorUnitsToDecimal(j.AmountMinorUnits)
}

// IsDeadLettered reports whether the job is excluded from automatic recovery.
func (j *Job) IsDeadLettered() bool {
	return j.PermanentlyFailedAt != nil
}

// HashCalculation produces a SHA-256 hash over the calculation fields. A job's
// stored hash not matching a recomputation signals drifted source data.
func (j *Job) HashCalculation() string {
	data := fmt.Sprintf("%d%d%d%s%s%s%s%s",
		j.AmountMinorUnits, j.GrossSalaryMinorUnits, j.NetSalaryMinorUnits,
		j.Currency, j.EmployeeID, j.RecipientID,
		j.PeriodStart.Format("2006-01-02"), j.PeriodEnd.Format("2006-01-02"))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// DiffImmutableFields compares the calculation fields of a stored job against
// an incoming update and returns the names of any that differ. A non-empty
// result must abort the write: historical audit and tax data may only be
// corrected by creating a new job and dead-lettering this one.
func DiffImmutableFields(stored, incoming *Job) []string {
	var changed []string
	if stored.AmountMinorUnits != incoming.AmountMinorUnits {
		changed = append(changed, "amount_minor_units")
	}
	if stored.GrossSalaryMinorUnits != incoming.GrossSalaryMinorUnits {
		changed = append(changed, "gross_salary_minor_units")
	}
	if stored.NetSalaryMinorUnits != incoming.NetSalaryMinorUnits {
		changed = append(changed, "net_salary_minor_units")
	}
	if stored.Currency != incoming.Currency {
		changed = append(changed, "currency")
	}
	if stored.CalculationHash != incoming.CalculationHash {
		changed = append(changed, "calculation_hash")
	}
	if stored.CalculationVersion != incoming.CalculationVersion {
		changed = append(changed, "calculation_version")
	}
	if !stored.PeriodStart.Equal(incoming.PeriodStart) {
		changed = append(changed, "period_start")
	}
	if !stored.PeriodEnd.Equal(incoming.PeriodEnd) {
		changed = append(changed, "period_end")
	}
	if stored.EmployeeID != incoming.EmployeeID {
		changed = append(changed, "employee_id")
	}
	if stored.RecipientID != incoming.RecipientID {
		changed = append(changed, "recipient_id")
	}
	if !jsonEqual(stored.TaxBreakdown, incoming.TaxBreakdown) {
		changed = append(changed, "tax_breakdown")
	}
	if !jsonEqual(stored.RecipientSnapshot, incoming.RecipientSnapshot) {
		changed = append(changed, "recipient_snapshot")
	}
	return changed
}

func jsonEqual(a, b []byte) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		return string(a) == string(b)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	aj, _ := json.Marshal(av)
	bj, _ := json.Marshal(bv)
	return string(aj) == string(bj)
}

// TaxBreakdownV1 is version 1 of the per-job tax snapshot. The formulas that
// produce it are a pluggable calculator; the engine only guarantees the stored
// numbers never change.
type TaxBreakdownV1 struct {
	PAYEMinorUnits int64 `json:"paye_minor_units"`
	UIFMinorUnits  int64 `json:"uif_minor_units"`
	SDLMinorUnits  int64 `json:"sdl_minor_units"`
}

// Total returns the sum of all tax components.
func (t TaxBreakdownV1) Total() int64 {
	return t.PAYEMinorUnits + t.UIFMinorUnits + t.SDLMinorUnits
}

// AdjustmentV1 is a single payroll adjustment. Negative amounts are
// deductions.
type AdjustmentV1 struct {
	Code             string `json:"code"`
	Description      string `json:"description,omitempty"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
}

// EmployeeSnapshotV1 is version 1 of the employee state captured at job
// creation.
type EmployeeSnapshotV1 struct {
	EmployeeID           string         `json:"employee_id"`
	FullName             string         `json:"full_name"`
	TaxNumber            string         `json:"tax_number,omitempty"`
	BaseSalaryMinorUnits int64          `json:"base_salary_minor_units"`
	Adjustments          []AdjustmentV1 `json:"adjustments,omitempty"`
}

// DecodeEmployeeSnapshot decodes a stored snapshot according to its
// calculation version.
func DecodeEmployeeSnapshot(version int, raw []byte) (*EmployeeSnapshotV1, error) {
	switch version {
	case 1:
		var snapshot EmployeeSnapshotV1
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			return nil, err
		}
		return &snapshot, nil
	default:
		return nil, fmt.Errorf("unknown calculation version %d", version)
	}
}

// DecodeTaxBreakdown decodes a stored tax breakdown according to its
// calculation version.
func DecodeTaxBreakdown(version int, raw []byte) (*TaxBreakdownV1, error) {
	switch version {
	case 1:
		var breakdown TaxBreakdownV1
		if err := json.Unmarshal(raw, &breakdown); err != nil {
			return nil, err
		}
		return &breakdown, nil
	default:
		return nil, fmt.Errorf("unknown calculation version %d", version)
	}
}

// CalculationResult is the output of a payroll calculator run.
type CalculationResult struct {
	GrossMinorUnits int64
	NetMinorUnits   int64
	Tax             TaxBreakdownV1
}

// PayrollCalculator recomputes a job's numbers from an employee snapshot.
// Tax-law correctness lives behind this interface.
type PayrollCalculator interface {
	Calculate(snapshot *EmployeeSnapshotV1) (*CalculationResult, error)
}
