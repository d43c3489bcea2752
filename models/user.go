package models

import "time"

// User represents a board member. Passwords are stored as bcrypt hashes only.
// Withdrawn accounts are anonymized and kept with IsActive=false so that their posts survive.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"size:150;not null;uniqueIndex" json:"username"`
	Email        string     `gorm:"size:254;index" json:"email"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	Provider     string     `gorm:"size:32" json:"provider,omitempty"`
	ProviderID   string     `gorm:"size:255;index" json:"-"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"date_joined"`
	UpdatedAt    time.Time  `json:"-"`
}
