package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/nspmotors/loyalty-backend/internal/loyalty"
	"github.com/nspmotors/loyalty-backend/internal/models"
)

// LedgerService owns the append-only points ledger. The ledger sum is the
// authoritative balance; accounts.points is a cache that every write path
// moves inside the same transaction as its ledger append.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// AppendTx inserts a single immutable ledger entry. Pure insert, never an
// update or delete.
func (s *LedgerService) AppendTx(tx *sql.Tx, entry *models.LedgerEntry) (string, error) {
	if entry.Amount <= 0 {
		return "", fmt.Errorf("ledger entry amount must be positive, got %d", entry.Amount)
	}
	switch entry.Kind {
	case models.EntryEarned, models.EntrySpent, models.EntryBonus, models.EntryPenalty:
	default:
		return "", fmt.Errorf("unknown ledger entry kind %q", entry.Kind)
	}

	var id string
	err := tx.QueryRow(`
		INSERT INTO ledger_entries (account_ref, kind, amount, description, timestamp, redemption_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.AccountRef, entry.Kind, entry.Amount, entry.Description, time.Now(), entry.RedemptionRef,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordTx appends the entry and applies its signed delta to the account's
// denormalized balance in the same transaction. Returns the entry id and
// the new cached balance.
func (s *LedgerService) RecordTx(tx *sql.Tx, entry *models.LedgerEntry) (string, int, error) {
	id, err := s.AppendTx(tx, entry)
	if err != nil {
		return "", 0, err
	}

	var newBalance int
	err = tx.QueryRow(`
		UPDATE accounts
		SET points = points + $1
		WHERE id = $2
		RETURNING points`,
		entry.SignedAmount(), entry.AccountRef,
	).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return "", 0, fmt.Errorf("account %s not found for balance update", entry.AccountRef)
	}
	if err != nil {
		return "", 0, err
	}

	return id, newBalance, nil
}

// Record is the standalone form of RecordTx for callers outside a larger
// unit of work, such as manual adjustments.
func (s *LedgerService) Record(ctx context.Context, entry *models.LedgerEntry) (string, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, loyalty.Transient("ledger record", err)
	}
	defer tx.Rollback()

	id, newBalance, err := s.RecordTx(tx, entry)
	if err != nil {
		return "", 0, err
	}

	if err := tx.Commit(); err != nil {
		return "", 0, loyalty.Transient("ledger record", err)
	}
	return id, newBalance, nil
}

// BalanceOf folds the account's ledger by kind-signed sum. This is the
// ground truth; reads that want the cached value use accounts.points.
func (s *LedgerService) BalanceOf(ctx context.Context, accountRef string) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN kind IN ('earned', 'bonus') THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE account_ref = $1`,
		accountRef,
	).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// HistoryOf returns the account's entries newest first, with the total
// entry count for pagination.
func (s *LedgerService) HistoryOf(ctx context.Context, accountRef string, limit, offset int) ([]models.LedgerEntry, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_ref, kind, amount, description, timestamp, redemption_ref
		FROM ledger_entries
		WHERE account_ref = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3`,
		accountRef, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountRef, &e.Kind, &e.Amount, &e.Description, &e.Timestamp, &e.RedemptionRef); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_entries WHERE account_ref = $1`,
		accountRef,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Reconcile compares the ledger sum with the cached balance and fails with
// an InvariantError on divergence. Never repairs.
func (s *LedgerService) Reconcile(ctx context.Context, accountRef string) error {
	var ledgerSum, cached int
	err := s.db.QueryRowContext(ctx, `
		SELECT a.points,
		       COALESCE((SELECT SUM(CASE WHEN l.kind IN ('earned', 'bonus') THEN l.amount ELSE -l.amount END)
		                 FROM ledger_entries l WHERE l.account_ref = a.id), 0)
		FROM accounts a
		WHERE a.id = $1`,
		accountRef,
	).Scan(&cached, &ledgerSum)
	if err != nil {
		return err
	}

	if ledgerSum != cached {
		log.Printf("[LEDGER] Invariant violation for account %s: ledger sum %d, cached balance %d", accountRef, ledgerSum, cached)
		return &loyalty.InvariantError{AccountID: accountRef, LedgerSum: ledgerSum, CachedValue: cached}
	}

	return nil
}
