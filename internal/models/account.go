package models

import "time"

// Account roles. Minting is restricted to operators and admins.
const (
	RoleUser     = "user"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Account represents a loyalty program member. The Points column is a
// denormalized cache of the ledger sum and is only ever written inside the
// same transaction as the ledger entry that moves it.
type Account struct {
	ID               string     `json:"-" db:"id"`
	AccountID        string     `json:"id" db:"account_id"`
	Name             string     `json:"name" db:"name"`
	Email            string     `json:"email" db:"email"`
	Phone            string     `json:"phone" db:"phone"`
	PasswordHash     string     `json:"-" db:"password_hash"`
	UserType         string     `json:"userType" db:"user_type"`
	Points           int        `json:"points" db:"points"`
	Role             string     `json:"role" db:"role"`
	RegistrationDate time.Time  `json:"registrationDate" db:"registration_date"`
	IsActive         bool       `json:"isActive" db:"is_active"`
	LastLogin        *time.Time `json:"lastLogin,omitempty" db:"last_login"`
}

// CanMint reports whether the account may create new codes.
func (a *Account) CanMint() bool {
	return a.Role == RoleOperator || a.Role == RoleAdmin
}
