package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// sqlmockDB bundles the mock handle with its *sql.DB for the service tests.
type sqlmockDB struct {
	DB   *sql.DB
	Mock sqlmock.Sqlmock
}

func newSQLMock(t *testing.T) *sqlmockDB {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return &sqlmockDB{DB: db, Mock: mock}
}

func (m *sqlmockDB) Close() {
	m.DB.Close()
}

// expectResolvedAccount registers the session-join query a token resolve
// performs, returning an active account with the given balance.
func expectResolvedAccount(mock sqlmock.Sqlmock, token, id, accountID string, points int) {
	rows := sqlmock.NewRows([]string{
		"id", "account_id", "name", "email", "phone", "user_type", "points", "role",
		"registration_date", "is_active", "last_login", "expires_at",
	}).AddRow(id, accountID, "Ada Obi", "ada@example.com", "+2348012345678", "individual",
		points, "user", time.Now().Add(-48*time.Hour), true, nil, time.Now().Add(24*time.Hour))

	mock.ExpectQuery("SELECT a.id, a.account_id").WithArgs(token).WillReturnRows(rows)
}

// expectCodeLookup registers the registry fetch plus the scan counter bump
// that follows every successful lookup.
func expectCodeLookup(mock sqlmock.Sqlmock, codeID, id, productName, category string, points int, isUsed bool) {
	var usedBy, usedAt interface{}
	if isUsed {
		usedBy = "someone-else"
		usedAt = time.Now().Add(-time.Hour)
	}

	rows := sqlmock.NewRows([]string{
		"id", "code_id", "product_name", "category", "points", "description",
		"created_at", "scanned_count", "last_scanned", "is_used", "used_by", "used_at",
	}).AddRow(id, codeID, productName, category, points, "",
		time.Now().Add(-72*time.Hour), 3, nil, isUsed, usedBy, usedAt)

	mock.ExpectQuery("SELECT id, code_id, product_name").WithArgs(codeID).WillReturnRows(rows)
	mock.ExpectExec("UPDATE codes SET scanned_count").WithArgs(codeID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}
