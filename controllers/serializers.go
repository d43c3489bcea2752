package controllers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/creeps/board/models"
)

const (
	withdrawnLabel = "withdrawn member"
	anonymousLabel = "anonymous"
)

// authorDisplay hides the anonymized username of withdrawn members.
func authorDisplay(u models.User) string {
	switch {
	case u.ID == 0:
		return anonymousLabel
	case !u.IsActive:
		return withdrawnLabel
	default:
		return u.Username
	}
}

type postBody struct {
	ID            uint      `json:"id"`
	User          uint      `json:"user"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Category      string    `json:"category"`
	IsPinned      bool      `json:"is_pinned"`
	Views         uint      `json:"views"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Comments      []uint    `json:"comments"`
	AuthorDisplay string    `json:"author_display"`
}

func serializePost(p models.Post, commentIDs []uint) postBody {
	if commentIDs == nil {
		commentIDs = []uint{}
	}
	return postBody{
		ID:            p.ID,
		User:          p.UserID,
		Title:         p.Title,
		Content:       p.Content,
		Category:      p.Category,
		IsPinned:      p.IsPinned,
		Views:         p.Views,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		Comments:      commentIDs,
		AuthorDisplay: authorDisplay(p.User),
	}
}

type commentBody struct {
	ID             uint      `json:"id"`
	Author         uint      `json:"author"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Post           uint      `json:"post"`
	AuthorUsername string    `json:"author_username"`
}

func serializeComment(c models.Comment) commentBody {
	return commentBody{
		ID:             c.ID,
		Author:         c.AuthorID,
		Content:        c.Content,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		Post:           c.PostID,
		AuthorUsername: authorDisplay(c.Author),
	}
}

func serializeUser(u models.User) gin.H {
	return gin.H{
		"id":            u.ID,
		"username":      u.Username,
		"email":         u.Email,
		"provider":      u.Provider,
		"is_active":     u.IsActive,
		"is_admin":      isAdminUsername(u.Username),
		"last_login_at": u.LastLoginAt,
		"date_joined":   u.CreatedAt,
	}
}
