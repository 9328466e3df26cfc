package loyalty

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors - redemption outcomes
var (
	ErrInvalidFormat   = errors.New("loyalty: invalid code format")
	ErrCodeNotFound    = errors.New("loyalty: code not found")
	ErrUnauthenticated = errors.New("loyalty: authentication required")
	ErrForbidden       = errors.New("loyalty: insufficient role")
)

// Sentinel errors - registry
var (
	ErrCodeExists  = errors.New("loyalty: code identifier already exists")
	ErrPointsRange = errors.New("loyalty: point value out of range [1, 1000]")
)

// AlreadyUsedError reports a redemption attempt against a consumed code.
// It carries the prior redemption metadata so the caller can tell the user
// what the code was and when it was spent, not just that it failed.
type AlreadyUsedError struct {
	CodeID      string
	ProductName string
	UsedAt      *time.Time
}

func (e *AlreadyUsedError) Error() string {
	if e.UsedAt != nil {
		return fmt.Sprintf("loyalty: code %s already used at %s", e.CodeID, e.UsedAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("loyalty: code %s already used", e.CodeID)
}

// TransientError wraps a storage or connectivity failure. The operation did
// not take effect and is safe for the caller to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("loyalty: transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError, or returns nil if err is nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// InvariantError reports a detected mismatch between the ledger sum and a
// denormalized balance. It is fatal to the operation and must be surfaced
// for operator attention, never repaired silently.
type InvariantError struct {
	AccountID   string
	LedgerSum   int
	CachedValue int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("loyalty: ledger invariant violated for account %s: ledger sum %d, cached balance %d",
		e.AccountID, e.LedgerSum, e.CachedValue)
}
