package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/nspmotors/loyalty-backend/internal/config"
	"github.com/nspmotors/loyalty-backend/internal/loyalty"
	"github.com/nspmotors/loyalty-backend/internal/models"
)

// RegistryService owns the catalog of mintable codes and their redemption
// status. The only mutating operation on a minted code is MarkRedeemedTx.
type RegistryService struct {
	db     *sql.DB
	redis  *redis.Client
	config *config.LoyaltyConfig
}

// MintSpec describes a code to create. CodeID is optional; when empty the
// registry derives one with a random suffix.
type MintSpec struct {
	CodeID      string `json:"codeId" validate:"omitempty,min=3,max=64"`
	ProductName string `json:"productName" validate:"required,min=2,max=128"`
	Category    string `json:"category" validate:"required,min=2,max=64"`
	Points      int    `json:"points" validate:"required"`
	Description string `json:"description" validate:"max=1000"`
}

// MintedCode is the mint result: the stored code plus its wire string and
// a rendered QR image for distribution.
type MintedCode struct {
	Code     *models.Code `json:"code"`
	CodeText string       `json:"codeText"`
	QRImage  string       `json:"qrImage"` // base64 PNG
}

func NewRegistryService(db *sql.DB, redisClient *redis.Client) *RegistryService {
	return &RegistryService{
		db:     db,
		redis:  redisClient,
		config: config.LoadLoyaltyConfig(),
	}
}

// Mint creates a new single-use code. Only operators and admins may mint;
// an identifier collision is rejected, never overwritten.
func (s *RegistryService) Mint(ctx context.Context, actor *models.Account, spec MintSpec) (*MintedCode, error) {
	if actor == nil || !actor.CanMint() {
		return nil, loyalty.ErrForbidden
	}
	if spec.Points < s.config.MinPointValue || spec.Points > s.config.MaxPointValue {
		return nil, loyalty.ErrPointsRange
	}

	derived := spec.CodeID == ""
	codeID := spec.CodeID

	// A derived identifier that collides is regenerated; a caller-supplied
	// one that collides is the caller's problem.
	attempts := 1
	if derived {
		attempts = 3
	}

	var code models.Code
	for i := 0; i < attempts; i++ {
		if derived {
			codeID = s.deriveCodeID()
		}

		err := s.db.QueryRowContext(ctx, `
			INSERT INTO codes (code_id, product_name, category, points, description, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`,
			codeID, spec.ProductName, spec.Category, spec.Points, spec.Description, actor.ID,
		).Scan(&code.ID, &code.CreatedAt)
		if err == nil {
			break
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			if derived && i < attempts-1 {
				continue
			}
			return nil, loyalty.ErrCodeExists
		}
		return nil, loyalty.Transient("registry mint", err)
	}

	code.CodeID = codeID
	code.ProductName = spec.ProductName
	code.Category = spec.Category
	code.Points = spec.Points
	code.Description = spec.Description
	code.CreatedBy = actor.ID

	codeText := fmt.Sprintf("%s:%s:%s:%d", s.config.CodePrefix, codeID, spec.Category, spec.Points)
	png, err := qrcode.Encode(codeText, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}

	log.Printf("[REGISTRY] Minted code %s (%s, %d points) by %s", codeID, spec.ProductName, spec.Points, actor.AccountID)

	return &MintedCode{
		Code:     &code,
		CodeText: codeText,
		QRImage:  base64.StdEncoding.EncodeToString(png),
	}, nil
}

// Lookup fetches a code by its business identifier and bumps the scan
// counter. The counter tracks popularity only and moves regardless of
// whether the code ends up redeemed.
func (s *RegistryService) Lookup(ctx context.Context, codeID string) (*models.Code, error) {
	var code models.Code
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code_id, product_name, category, points, description,
		       created_at, scanned_count, last_scanned, is_used, used_by, used_at
		FROM codes
		WHERE code_id = $1`,
		codeID,
	).Scan(&code.ID, &code.CodeID, &code.ProductName, &code.Category, &code.Points,
		&code.Description, &code.CreatedAt, &code.ScannedCount, &code.LastScanned,
		&code.IsUsed, &code.UsedBy, &code.UsedAt)
	if err == sql.ErrNoRows {
		return nil, loyalty.ErrCodeNotFound
	}
	if err != nil {
		return nil, loyalty.Transient("registry lookup", err)
	}

	s.bumpScanCounter(ctx, codeID)
	return &code, nil
}

func (s *RegistryService) bumpScanCounter(ctx context.Context, codeID string) {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE codes SET scanned_count = scanned_count + 1, last_scanned = now()
		WHERE code_id = $1`, codeID); err != nil {
		log.Printf("[REGISTRY] Scan counter bump failed for %s: %v", codeID, err)
	}

	if s.redis != nil {
		if err := s.redis.Incr(ctx, "code:scans:"+codeID).Err(); err != nil {
			log.Printf("[REGISTRY] Redis scan counter failed for %s: %v", codeID, err)
		}
	}
}

// MarkRedeemedTx flips the code from unused to used with a single
// conditional update. Exactly one concurrent caller sees nil; the rest get
// an AlreadyUsedError carrying the prior redemption metadata. Never
// implemented as a read-then-write pair.
func (s *RegistryService) MarkRedeemedTx(tx *sql.Tx, codeID, accountRef string, now time.Time) error {
	result, err := tx.Exec(`
		UPDATE codes
		SET is_used = TRUE, used_by = $2, used_at = $3
		WHERE code_id = $1 AND NOT is_used`,
		codeID, accountRef, now)
	if err != nil {
		return loyalty.Transient("registry mark redeemed", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return loyalty.Transient("registry mark redeemed", err)
	}
	if affected == 1 {
		return nil
	}

	// Lost the race, or the code never existed. Fetch what we lost to.
	var productName string
	var usedAt *time.Time
	err = tx.QueryRow(`
		SELECT product_name, used_at FROM codes WHERE code_id = $1`,
		codeID,
	).Scan(&productName, &usedAt)
	if err == sql.ErrNoRows {
		return loyalty.ErrCodeNotFound
	}
	if err != nil {
		return loyalty.Transient("registry mark redeemed", err)
	}

	return &loyalty.AlreadyUsedError{CodeID: codeID, ProductName: productName, UsedAt: usedAt}
}

// deriveCodeID builds identifiers like NSP_3F9A1C0D.
func (s *RegistryService) deriveCodeID() string {
	b := make([]byte, s.config.CodeIDRandomBytes)
	cryptorand.Read(b)
	return fmt.Sprintf("%s_%s", s.config.CodePrefix, strings.ToUpper(hex.EncodeToString(b)))
}
