package models

import "time"

// Session binds an opaque bearer token to an account for a fixed validity
// window. A token is usable only while IsActive and before ExpiresAt;
// multiple concurrent sessions per account are allowed.
type Session struct {
	ID         string    `json:"-" db:"id"`
	AccountRef string    `json:"-" db:"account_ref"`
	Token      string    `json:"-" db:"token"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	ExpiresAt  time.Time `json:"expiresAt" db:"expires_at"`
	IsActive   bool      `json:"isActive" db:"is_active"`
	DeviceInfo string    `json:"deviceInfo" db:"device_info"`
}
