package models

import "time"

// UserConsent records which policy versions a member accepted at registration.
type UserConsent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	AcceptedTermsAt time.Time `json:"accepted_terms_at"`
	TermsVersion    string    `gorm:"size:20" json:"terms_version"`
	PrivacyVersion  string    `gorm:"size:20" json:"privacy_version"`
	MarketingOptIn  bool      `gorm:"not null;default:false" json:"marketing_opt_in"`
	ClientIP        string    `gorm:"size:45" json:"ip"`
	User            User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
