package models

import "time"

// Post categories.
const (
	CategoryBasic       = "basic"
	CategoryJobsHousing = "jobs_housing"
	CategoryGuide       = "guide"
	CategoryTravel      = "travel"
	CategoryQnA         = "qna"
)

var categories = map[string]struct{}{
	CategoryBasic:       {},
	CategoryJobsHousing: {},
	CategoryGuide:       {},
	CategoryTravel:      {},
	CategoryQnA:         {},
}

// IsValidCategory reports whether c is one of the known post categories.
func IsValidCategory(c string) bool {
	_, ok := categories[c]
	return ok
}

// Post represents a board post. Content holds sanitized editor HTML which may embed hosted images.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user"`
	Title     string    `gorm:"size:50;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Category  string    `gorm:"size:20;not null;default:basic;index" json:"category"`
	IsPinned  bool      `gorm:"not null;default:false" json:"is_pinned"`
	Views     uint      `gorm:"not null;default:0" json:"views"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Comments  []Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
