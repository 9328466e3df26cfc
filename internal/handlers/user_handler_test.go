package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/nspmotors/loyalty-backend/internal/models"
	"github.com/nspmotors/loyalty-backend/internal/services"
)

func newUserHandler(t *testing.T) (*UserHandler, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	ledger := services.NewLedgerService(db)
	sessions := services.NewSessionService(db, nil, ledger)
	registry := services.NewRegistryService(db, nil)
	redemption := services.NewRedemptionService(db, sessions, registry, ledger)
	return NewUserHandler(ledger, redemption), db, mock
}

func TestUserHandler_GetProfile(t *testing.T) {
	account := &models.Account{ID: "acc-1", AccountID: "pub-1", Points: 150, Role: models.RoleUser}

	t.Run("consistent balance returns the profile", func(t *testing.T) {
		handler, db, mock := newUserHandler(t)
		defer db.Close()

		mock.ExpectQuery("SELECT a.points").
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"points", "sum"}).AddRow(150, 150))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/user/profile", nil)
		rec := authedRequest(handler.GetProfile, req, account)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("divergent balance surfaces the inconsistency", func(t *testing.T) {
		handler, db, mock := newUserHandler(t)
		defer db.Close()

		mock.ExpectQuery("SELECT a.points").
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"points", "sum"}).AddRow(150, 120))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/user/profile", nil)
		rec := authedRequest(handler.GetProfile, req, account)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "Ledger inconsistency detected", body["error"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserHandler_GetBalance(t *testing.T) {
	handler, db, mock := newUserHandler(t)
	defer db.Close()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(150))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/balance", nil)
	rec := authedRequest(handler.GetBalance, req, &models.Account{ID: "acc-1", AccountID: "pub-1"})

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(150), body["balance"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 50, 0},
		{"explicit", "?limit=10&offset=20", 10, 20},
		{"garbage values fall back", "?limit=abc&offset=xyz", 50, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/user/scans"+tc.query, nil)
			limit, offset := pagination(req)
			assert.Equal(t, tc.wantLimit, limit)
			assert.Equal(t, tc.wantOffset, offset)
		})
	}
}
