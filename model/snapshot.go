package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// BalanceSnapshot is a point-in-time cached balance per business and account
// type. It exists purely to avoid full ledger replay during reconciliation at
// scale; the checksum detects tampering with the cached row.
type BalanceSnapshot struct {
	ID                int64     `json:"-"`
	SnapshotID        string    `json:"snapshot_id"`
	BusinessID        string    `json:"business_id"`
	AccountType       string    `json:"account_type"`
	SnapshotDate      time.Time `json:"snapshot_date"`
	BalanceMinorUnits int64     `json:"balance_minor_units"`
	SequenceNumber    int64     `json:"sequence_number"`
	Checksum          string    `json:"checksum"`
	CreatedAt         time.Time `json:"created_at"`
}

// ComputeChecksum hashes the snapshot's identifying fields and balance.
func (s *BalanceSnapshot) ComputeChecksum() string {
	data := fmt.Sprintf("%s%s%s%d%d",
		s.BusinessID, s.AccountType, s.SnapshotDate.Format("2006-01-02"),
		s.BalanceMinorUnits, s.SequenceNumber)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// VerifyChecksum reports whether the stored checksum matches the snapshot
// contents.
func (s *BalanceSnapshot) VerifyChecksum() bool {
	return s.Checksum == s.ComputeChecksum()
}
