package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/nspmotors/loyalty-backend/internal/middleware"
	"github.com/nspmotors/loyalty-backend/internal/models"
	"github.com/nspmotors/loyalty-backend/internal/services"
)

type staticResolver struct {
	account *models.Account
}

func (s *staticResolver) Resolve(ctx context.Context, token string) (*models.Account, error) {
	return s.account, nil
}

func newCodeHandler(t *testing.T) (*CodeHandler, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewCodeHandler(services.NewRegistryService(db, nil), services.NewStatsService(db)), db, mock
}

// authedRequest runs the request through the auth middleware with a fixed
// account, the way the router does in production.
func authedRequest(handler http.HandlerFunc, req *http.Request, account *models.Account) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req.Header.Set("Authorization", "Bearer test-token")
	middleware.AuthMiddleware(&staticResolver{account: account})(handler).ServeHTTP(rec, req)
	return rec
}

func TestCodeHandler_Mint(t *testing.T) {
	t.Run("operator mints a code", func(t *testing.T) {
		handler, db, mock := newCodeHandler(t)
		defer db.Close()

		mock.ExpectQuery("INSERT INTO codes").
			WithArgs("BRAKE01", "Brake Pads", "BRAKES", 50, "", "op-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("code-1", time.Now()))

		body, _ := json.Marshal(map[string]any{
			"codeId": "BRAKE01", "productName": "Brake Pads", "category": "BRAKES", "points": 50,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/codes", bytes.NewReader(body))
		rec := authedRequest(handler.Mint, req, &models.Account{ID: "op-1", Role: models.RoleOperator})

		assert.Equal(t, http.StatusCreated, rec.Code)

		var minted services.MintedCode
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&minted))
		assert.Equal(t, "NSP:BRAKE01:BRAKES:50", minted.CodeText)
		assert.NotEmpty(t, minted.QRImage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("regular account is forbidden", func(t *testing.T) {
		handler, db, mock := newCodeHandler(t)
		defer db.Close()

		body, _ := json.Marshal(map[string]any{
			"productName": "Brake Pads", "category": "BRAKES", "points": 50,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/codes", bytes.NewReader(body))
		rec := authedRequest(handler.Mint, req, &models.Account{ID: "acc-1", Role: models.RoleUser})

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validation failure", func(t *testing.T) {
		handler, db, mock := newCodeHandler(t)
		defer db.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/codes",
			bytes.NewReader([]byte(`{"productName":"x"}`)))
		rec := authedRequest(handler.Mint, req, &models.Account{ID: "op-1", Role: models.RoleOperator})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unauthenticated request", func(t *testing.T) {
		handler, db, _ := newCodeHandler(t)
		defer db.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/codes", bytes.NewReader([]byte(`{}`)))
		rec := httptest.NewRecorder()

		handler.Mint(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCodeHandler_Stats(t *testing.T) {
	t.Run("regular account is forbidden", func(t *testing.T) {
		handler, db, mock := newCodeHandler(t)
		defer db.Close()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		rec := authedRequest(handler.Stats, req, &models.Account{ID: "acc-1", Role: models.RoleUser})

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("operator sees the aggregates", func(t *testing.T) {
		handler, db, mock := newCodeHandler(t)
		defer db.Close()

		mock.ExpectQuery("SELECT").
			WillReturnRows(sqlmock.NewRows([]string{
				"total_codes", "used_codes", "unused_codes", "total_scans",
				"total_accounts", "active_accounts", "points_redeemed", "ledger_net",
			}).AddRow(10, 4, 6, 37, 5, 4, 180, 680))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		rec := authedRequest(handler.Stats, req, &models.Account{ID: "op-1", Role: models.RoleAdmin})

		assert.Equal(t, http.StatusOK, rec.Code)

		var stats services.PlatformStats
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
		assert.Equal(t, 10, stats.TotalCodes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
