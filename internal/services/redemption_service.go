package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nspmotors/loyalty-backend/internal/config"
	"github.com/nspmotors/loyalty-backend/internal/loyalty"
	"github.com/nspmotors/loyalty-backend/internal/models"
)

// RedemptionService orchestrates the atomic transition "code unused ->
// code used + scan record + ledger entry + balance bump". Either all four
// commit or none do; a redeemed mark without its ledger entry must never
// be observable.
type RedemptionService struct {
	db       *sql.DB
	sessions *SessionService
	registry *RegistryService
	ledger   *LedgerService
	config   *config.LoyaltyConfig
}

// ParsedCode is the decoded wire form of a redemption code. Category and
// Points are caller-supplied display metadata echoed as-is; only the
// identifier is authoritative. They are not cross-checked against the
// registry record, which may legitimately have been edited since minting.
type ParsedCode struct {
	Identifier string
	Category   string
	Points     string
}

// RedemptionResult is returned on a successful redemption.
type RedemptionResult struct {
	ScanID          string    `json:"scanId"`
	ProductName     string    `json:"productName"`
	ProductCategory string    `json:"productCategory"`
	PointsEarned    int       `json:"pointsEarned"`
	Description     string    `json:"description"`
	NewBalance      int       `json:"newBalance"`
	Timestamp       time.Time `json:"timestamp"`
}

func NewRedemptionService(db *sql.DB, sessions *SessionService, registry *RegistryService, ledger *LedgerService) *RedemptionService {
	return &RedemptionService{
		db:       db,
		sessions: sessions,
		registry: registry,
		ledger:   ledger,
		config:   config.LoadLoyaltyConfig(),
	}
}

// ParseCode validates the fixed wire scheme PREFIX:IDENTIFIER:CATEGORY:POINTS
// (colon-delimited, at least 4 fields). Fails fast before any store access.
func (s *RedemptionService) ParseCode(codeText string) (*ParsedCode, error) {
	if !strings.HasPrefix(codeText, s.config.CodePrefix+":") {
		return nil, loyalty.ErrInvalidFormat
	}

	parts := strings.Split(codeText, ":")
	if len(parts) < 4 {
		return nil, loyalty.ErrInvalidFormat
	}
	if parts[1] == "" {
		return nil, loyalty.ErrInvalidFormat
	}

	return &ParsedCode{
		Identifier: parts[1],
		Category:   parts[2],
		Points:     parts[3],
	}, nil
}

// Redeem consumes a code on behalf of the token's account.
//
// Outcomes: ErrInvalidFormat, ErrUnauthenticated, ErrCodeNotFound,
// *AlreadyUsedError (with prior redemption metadata), *TransientError.
// None are retried here; a client retry of a success surfaces AlreadyUsed,
// never a double credit.
func (s *RedemptionService) Redeem(ctx context.Context, token, codeText, location string) (*RedemptionResult, error) {
	parsed, err := s.ParseCode(codeText)
	if err != nil {
		return nil, err
	}

	account, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	code, err := s.registry.Lookup(ctx, parsed.Identifier)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, loyalty.Transient("redeem begin", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if err := s.registry.MarkRedeemedTx(tx, code.CodeID, account.ID, now); err != nil {
		return nil, err
	}

	var scanID string
	var scanAt time.Time
	err = tx.QueryRow(`
		INSERT INTO redemptions (code_ref, account_ref, points_earned, product_name, product_category, location, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, timestamp`,
		code.ID, account.ID, code.Points, code.ProductName, code.Category, location, now,
	).Scan(&scanID, &scanAt)
	if err != nil {
		return nil, loyalty.Transient("redeem scan record", err)
	}

	_, newBalance, err := s.ledger.RecordTx(tx, &models.LedgerEntry{
		AccountRef:    account.ID,
		Kind:          models.EntryEarned,
		Amount:        code.Points,
		Description:   fmt.Sprintf("Code redemption (%s)", code.ProductName),
		RedemptionRef: &scanID,
	})
	if err != nil {
		return nil, loyalty.Transient("redeem ledger append", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, loyalty.Transient("redeem commit", err)
	}

	log.Printf("[REDEEM] Code %s redeemed by %s for %d points", code.CodeID, account.AccountID, code.Points)

	return &RedemptionResult{
		ScanID:          scanID,
		ProductName:     code.ProductName,
		ProductCategory: code.Category,
		PointsEarned:    code.Points,
		Description:     code.Description,
		NewBalance:      newBalance,
		Timestamp:       scanAt,
	}, nil
}

// ScansOf returns the account's redemption history, newest first, with the
// lifetime scan count and points total for pagination and display.
func (s *RedemptionService) ScansOf(ctx context.Context, accountRef string, limit, offset int) ([]models.Redemption, int, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code_ref, account_ref, points_earned, product_name, product_category, location, timestamp
		FROM redemptions
		WHERE account_ref = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3`,
		accountRef, limit, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	scans := []models.Redemption{}
	for rows.Next() {
		var sc models.Redemption
		if err := rows.Scan(&sc.ID, &sc.CodeRef, &sc.AccountRef, &sc.PointsEarned,
			&sc.ProductName, &sc.ProductCategory, &sc.Location, &sc.Timestamp); err != nil {
			return nil, 0, 0, err
		}
		scans = append(scans, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	var totalScans, totalPoints int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(points_earned), 0)
		FROM redemptions
		WHERE account_ref = $1`,
		accountRef,
	).Scan(&totalScans, &totalPoints)
	if err != nil {
		return nil, 0, 0, err
	}

	return scans, totalScans, totalPoints, nil
}
