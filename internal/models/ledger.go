package models

import "time"

// Ledger entry kinds. The stored amount is always a positive magnitude;
// the kind decides the sign when folding a balance.
const (
	EntryEarned  = "earned"
	EntrySpent   = "spent"
	EntryBonus   = "bonus"
	EntryPenalty = "penalty"
)

// LedgerEntry is one immutable row of the append-only points ledger.
// RedemptionRef links an earned entry back to the scan that produced it.
type LedgerEntry struct {
	ID            string    `json:"id" db:"id"`
	AccountRef    string    `json:"-" db:"account_ref"`
	Kind          string    `json:"type" db:"kind"`
	Amount        int       `json:"amount" db:"amount"`
	Description   string    `json:"description" db:"description"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	RedemptionRef *string   `json:"redemptionRef,omitempty" db:"redemption_ref"`
}

// SignedAmount returns the amount with the sign implied by the entry kind.
func (e *LedgerEntry) SignedAmount() int {
	switch e.Kind {
	case EntrySpent, EntryPenalty:
		return -e.Amount
	default:
		return e.Amount
	}
}
