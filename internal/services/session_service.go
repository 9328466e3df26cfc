package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/nspmotors/loyalty-backend/internal/config"
	"github.com/nspmotors/loyalty-backend/internal/loyalty"
	"github.com/nspmotors/loyalty-backend/internal/models"
)

// SessionService is the session authority: it issues, resolves and revokes
// the opaque bearer tokens that gate the redemption engine, and carries the
// registration/login HTTP flows that mint them.
type SessionService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LedgerService
	validator *ValidationHelper
	config    *config.LoyaltyConfig
}

// LoginRequest is the login payload
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	DeviceInfo string `json:"deviceInfo"`
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Name       string `json:"name" validate:"required,min=2"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required"`
	Password   string `json:"password" validate:"required,min=6"`
	UserType   string `json:"userType" validate:"required,oneof=individual business"`
	DeviceInfo string `json:"deviceInfo"`
}

// AuthResponse is returned by both registration and login
type AuthResponse struct {
	Success bool            `json:"success"`
	User    *models.Account `json:"user"`
	Token   string          `json:"token"`
}

func NewSessionService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService) *SessionService {
	return &SessionService{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		validator: NewValidationHelper(),
		config:    config.LoadLoyaltyConfig(),
	}
}

// IssueTx creates a session row for the account within the caller's
// transaction and returns the bearer token. The token never leaves the
// process except through the response body.
func (s *SessionService) IssueTx(tx *sql.Tx, accountRef, deviceInfo string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	expiresAt := time.Now().Add(s.config.SessionTTL)
	_, err = tx.Exec(`
		INSERT INTO sessions (account_ref, token, expires_at, is_active, device_info)
		VALUES ($1, $2, $3, TRUE, $4)`,
		accountRef, token, expiresAt, deviceInfo)
	if err != nil {
		return "", err
	}

	return token, nil
}

// Issue creates a session outside any larger unit of work.
func (s *SessionService) Issue(ctx context.Context, accountRef, deviceInfo string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", loyalty.Transient("session issue", err)
	}
	defer tx.Rollback()

	token, err := s.IssueTx(tx, accountRef, deviceInfo)
	if err != nil {
		return "", loyalty.Transient("session issue", err)
	}

	if err := tx.Commit(); err != nil {
		return "", loyalty.Transient("session issue", err)
	}
	return token, nil
}

// Resolve maps a bearer token to its active account. Malformed, unknown,
// expired and revoked tokens all collapse to ErrUnauthenticated so the
// response never acts as an oracle.
func (s *SessionService) Resolve(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, loyalty.ErrUnauthenticated
	}

	if account := s.cachedAccount(ctx, token); account != nil {
		return account, nil
	}

	var account models.Account
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.account_id, a.name, a.email, a.phone, a.user_type, a.points, a.role,
		       a.registration_date, a.is_active, a.last_login, sess.expires_at
		FROM accounts a
		JOIN sessions sess ON sess.account_ref = a.id
		WHERE sess.token = $1
		  AND sess.is_active
		  AND sess.expires_at > now()
		  AND a.is_active`,
		token,
	).Scan(&account.ID, &account.AccountID, &account.Name, &account.Email, &account.Phone,
		&account.UserType, &account.Points, &account.Role,
		&account.RegistrationDate, &account.IsActive, &account.LastLogin, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, loyalty.ErrUnauthenticated
	}
	if err != nil {
		return nil, loyalty.Transient("session resolve", err)
	}

	s.cacheAccount(ctx, token, &account, expiresAt)
	return &account, nil
}

// Revoke deactivates a session. Revoking an unknown or already-revoked
// token is a no-op, not an error.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = FALSE WHERE token = $1`, token)
	if err != nil {
		return loyalty.Transient("session revoke", err)
	}

	if s.redis != nil {
		s.redis.Del(ctx, sessionCacheKey(token))
	}
	return nil
}

// ActiveSessions lists the account's live sessions, newest first. Tokens
// are never included in the listing.
func (s *SessionService) ActiveSessions(ctx context.Context, accountRef string) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_ref, created_at, expires_at, is_active, device_info
		FROM sessions
		WHERE account_ref = $1 AND is_active AND expires_at > now()
		ORDER BY created_at DESC`,
		accountRef)
	if err != nil {
		return nil, loyalty.Transient("session list", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.AccountRef, &sess.CreatedAt,
			&sess.ExpiresAt, &sess.IsActive, &sess.DeviceInfo); err != nil {
			return nil, loyalty.Transient("session list", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, loyalty.Transient("session list", err)
	}

	return sessions, nil
}

// Sessions serves the caller's own active session listing.
func (s *SessionService) Sessions(w http.ResponseWriter, r *http.Request) {
	account, err := s.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		SendErrorResponse(w, "Authentication required", http.StatusUnauthorized, nil)
		return
	}

	sessions, err := s.ActiveSessions(r.Context(), account.ID)
	if err != nil {
		log.Printf("[AUTH] Session listing failed for %s: %v", account.AccountID, err)
		SendErrorResponse(w, "Failed to list sessions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"sessions": sessions})
}

func (s *SessionService) cachedAccount(ctx context.Context, token string) *models.Account {
	if s.redis == nil {
		return nil
	}

	data, err := s.redis.Get(ctx, sessionCacheKey(token)).Bytes()
	if err != nil {
		return nil
	}

	var account models.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil
	}
	return &account
}

func (s *SessionService) cacheAccount(ctx context.Context, token string, account *models.Account, expiresAt time.Time) {
	if s.redis == nil {
		return
	}

	ttl := s.config.SessionCacheTTL
	// Never let the cache outlive the session itself.
	if remaining := time.Until(expiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(account)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, sessionCacheKey(token), data, ttl).Err(); err != nil {
		log.Printf("[SESSION] Failed to cache session: %v", err)
	}
}

func sessionCacheKey(token string) string {
	return "session:" + token
}

// Register handles user registration: account, registration-bonus ledger
// entry and first session are created in one transaction.
func (s *SessionService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	log.Printf("[AUTH] Registration request for email: %s", req.Email)

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	account := &models.Account{
		AccountID:    generatePublicID(),
		Name:         req.Name,
		Email:        strings.ToLower(req.Email),
		Phone:        req.Phone,
		PasswordHash: hashedPassword,
		UserType:     req.UserType,
		Role:         models.RoleUser,
		IsActive:     true,
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	err = tx.QueryRow(`
		INSERT INTO accounts (account_id, name, email, phone, password_hash, user_type, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, registration_date`,
		account.AccountID, account.Name, account.Email, account.Phone,
		account.PasswordHash, account.UserType, account.Role,
	).Scan(&account.ID, &account.RegistrationDate)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			log.Printf("[AUTH] Duplicate email on registration: %s", req.Email)
			SendErrorResponse(w, "User with this email already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[AUTH] Account creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	if bonus := s.config.RegistrationBonus; bonus > 0 {
		_, newBalance, err := s.ledger.RecordTx(tx, &models.LedgerEntry{
			AccountRef:  account.ID,
			Kind:        models.EntryBonus,
			Amount:      bonus,
			Description: "Registration bonus",
		})
		if err != nil {
			log.Printf("[AUTH] Registration bonus failed for %s: %v", req.Email, err)
			SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
			return
		}
		account.Points = newBalance
	}

	token, err := s.IssueTx(tx, account.ID, req.DeviceInfo)
	if err != nil {
		log.Printf("[AUTH] Session creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Registration failed", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Account created successfully - ID: %s, Email: %s", account.AccountID, account.Email)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Success: true, User: account, Token: token})
}

// Login authenticates by email and password and issues a fresh session.
func (s *SessionService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var account models.Account
	err := s.db.QueryRow(`
		SELECT id, account_id, name, email, phone, password_hash, user_type, points, role,
		       registration_date, is_active, last_login
		FROM accounts
		WHERE email = $1 AND is_active`,
		strings.ToLower(req.Email),
	).Scan(&account.ID, &account.AccountID, &account.Name, &account.Email, &account.Phone,
		&account.PasswordHash, &account.UserType, &account.Points, &account.Role,
		&account.RegistrationDate, &account.IsActive, &account.LastLogin)
	if err != nil {
		log.Printf("[AUTH] Account not found for email: %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, account.PasswordHash) {
		log.Printf("[AUTH] Invalid password for account: %s", account.AccountID)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", account.AccountID, err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	token, err := s.IssueTx(tx, account.ID, req.DeviceInfo)
	if err != nil {
		log.Printf("[AUTH] Session creation failed for %s: %v", account.AccountID, err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	if _, err := tx.Exec(`UPDATE accounts SET last_login = now() WHERE id = $1`, account.ID); err != nil {
		log.Printf("[AUTH] last_login update failed for %s: %v", account.AccountID, err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", account.AccountID, err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for account %s", account.AccountID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Success: true, User: &account, Token: token})
}

// Logout revokes the presented bearer token. Always succeeds; revoking an
// unknown token changes nothing.
func (s *SessionService) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := s.Revoke(r.Context(), token); err != nil {
		log.Printf("[AUTH] Logout revoke failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// generateToken returns 32 bytes of crypto/rand entropy, URL-safe encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := cryptorand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generatePublicID returns the account's external identifier.
func generatePublicID() string {
	return uuid.NewString()
}

func hashPassword(password string) (string, error) {
	viper.SetDefault("argon2.salt_length", 16)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)

	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
