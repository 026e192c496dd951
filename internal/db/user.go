package db

import (
	"time"
)

// User represents a dashboard user that can sign in and read per-app
// statistics. The bootstrap admin user (from env) will be created as a row
// in this table on startup; only admins may manage apps.
type User struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:255;not null"`

	// SessionToken is the opaque value behind the session cookie. Rotated on
	// every login, cleared on logout; empty means no active session.
	SessionToken string `gorm:"index;size:255"`

	IsAdmin bool `gorm:"default:false"`
}
