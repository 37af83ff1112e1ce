package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User describes a registered account. Accounts created through local
// registration start unverified; federated signups are verified from the
// outset because the identity provider attests ownership of the email.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Name     string `gorm:"not null" json:"name"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	DateOfBirth *time.Time `json:"date_of_birth"`
	Verified    bool       `gorm:"default:false" json:"verified"`

	// AuthProvider records how the account was created ("local" or an
	// external provider type). AuthSubject holds the provider's opaque
	// subject identifier for federated accounts.
	AuthProvider string `gorm:"default:local" json:"auth_provider"`
	AuthSubject  string `json:"-"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
