package models

import "time"

// Code is a single-use redemption code. Once IsUsed is set the UsedBy and
// UsedAt columns are immutable; ScannedCount tracks popularity and moves
// independently of redemption.
type Code struct {
	ID           string     `json:"-" db:"id"`
	CodeID       string     `json:"codeId" db:"code_id"`
	ProductName  string     `json:"productName" db:"product_name"`
	Category     string     `json:"category" db:"category"`
	Points       int        `json:"points" db:"points"`
	Description  string     `json:"description" db:"description"`
	CreatedBy    string     `json:"-" db:"created_by"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	ScannedCount int        `json:"scannedCount" db:"scanned_count"`
	LastScanned  *time.Time `json:"lastScanned,omitempty" db:"last_scanned"`
	IsUsed       bool       `json:"isUsed" db:"is_used"`
	UsedBy       *string    `json:"-" db:"used_by"`
	UsedAt       *time.Time `json:"usedAt,omitempty" db:"used_at"`
}

// Redemption is the scan record written when a code is consumed. Points and
// product fields are snapshotted at redemption time so later edits to the
// code never rewrite history.
type Redemption struct {
	ID              string    `json:"id" db:"id"`
	CodeRef         string    `json:"-" db:"code_ref"`
	AccountRef      string    `json:"-" db:"account_ref"`
	PointsEarned    int       `json:"pointsEarned" db:"points_earned"`
	ProductName     string    `json:"productName" db:"product_name"`
	ProductCategory string    `json:"productCategory" db:"product_category"`
	Location        string    `json:"location" db:"location"`
	Timestamp       time.Time `json:"timestamp" db:"timestamp"`
}
