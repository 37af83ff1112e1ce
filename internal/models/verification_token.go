package models

import "time"

// VerificationToken associates an unverified user with a hashed one-time
// string. The raw string only ever travels inside the emailed link; the
// stored hash uses the same one-way scheme as passwords. At most one live
// token per user is expected: issuing a new token replaces any prior one.
type VerificationToken struct {
	BaseModel

	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	TokenHash string    `gorm:"not null" json:"-"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}
