package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/creeps/board/models"
	"github.com/creeps/board/utils"
)

// CommentController manages comments on posts.
type CommentController struct {
	db *gorm.DB
}

// NewCommentController creates a new CommentController instance.
func NewCommentController(db *gorm.DB) *CommentController {
	return &CommentController{db: db}
}

// ListComments returns comments, newest first, optionally filtered by ?post=<id>.
func (c *CommentController) ListComments(ctx *gin.Context) {
	q := c.db.WithContext(ctx.Request.Context()).Preload("Author").Order("created_at DESC")
	if raw := strings.TrimSpace(ctx.Query("post")); raw != "" {
		postID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			utils.Invalid(ctx, utils.FieldErrors{"post": {"A valid integer is required."}})
			return
		}
		q = q.Where("post_id = ?", postID)
	}

	var comments []models.Comment
	if err := q.Find(&comments).Error; err != nil {
		utils.Sugar.Errorw("list comments failed", "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to retrieve comments")
		return
	}

	items := make([]commentBody, 0, len(comments))
	for _, cm := range comments {
		items = append(items, serializeComment(cm))
	}
	utils.JSON(ctx, http.StatusOK, items)
}

// GetComment returns a single comment.
func (c *CommentController) GetComment(ctx *gin.Context) {
	comment, ok := c.loadComment(ctx)
	if !ok {
		return
	}
	utils.JSON(ctx, http.StatusOK, serializeComment(comment))
}

// CreateComment adds a comment to an existing post.
func (c *CommentController) CreateComment(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Detail(ctx, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return
	}

	var req struct {
		Post    uint   `json:"post"`
		Content string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}

	errs := utils.FieldErrors{}
	content := utils.Sanitize(strings.TrimSpace(req.Content))
	if content == "" {
		errs.Add("content", "This field may not be blank.")
	}
	if req.Post == 0 {
		errs.Add("post", "This field is required.")
	} else {
		var count int64
		if err := c.db.WithContext(ctx.Request.Context()).Model(&models.Post{}).Where("id = ?", req.Post).Count(&count).Error; err != nil {
			utils.Sugar.Errorw("check post failed", "post_id", req.Post, "error", err)
			utils.Detail(ctx, http.StatusInternalServerError, "failed to create comment")
			return
		}
		if count == 0 {
			errs.Add("post", "Invalid pk - object does not exist.")
		}
	}
	if len(errs) > 0 {
		utils.Invalid(ctx, errs)
		return
	}

	comment := models.Comment{PostID: req.Post, AuthorID: userID, Content: content}
	if err := c.db.WithContext(ctx.Request.Context()).Create(&comment).Error; err != nil {
		utils.Sugar.Errorw("create comment failed", "post_id", req.Post, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to create comment")
		return
	}
	if err := c.db.WithContext(ctx.Request.Context()).First(&comment.Author, userID).Error; err != nil {
		utils.Sugar.Warnw("load comment author failed", "user_id", userID, "error", err)
	}

	utils.JSON(ctx, http.StatusCreated, serializeComment(comment))
}

// UpdateComment edits the content of a comment (owner or admin).
func (c *CommentController) UpdateComment(ctx *gin.Context) {
	comment, ok := c.loadComment(ctx)
	if !ok {
		return
	}
	if !canModify(ctx, comment.AuthorID) {
		utils.Detail(ctx, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}

	var req struct {
		Content *string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.Content == nil {
		if ctx.Request.Method == http.MethodPut {
			utils.Invalid(ctx, utils.FieldErrors{"content": {"This field is required."}})
			return
		}
		utils.JSON(ctx, http.StatusOK, serializeComment(comment))
		return
	}
	content := utils.Sanitize(strings.TrimSpace(*req.Content))
	if content == "" {
		utils.Invalid(ctx, utils.FieldErrors{"content": {"This field may not be blank."}})
		return
	}

	row := models.Comment{ID: comment.ID}
	if err := c.db.WithContext(ctx.Request.Context()).Model(&row).Update("content", content).Error; err != nil {
		utils.Sugar.Errorw("update comment failed", "comment_id", comment.ID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to update comment")
		return
	}
	comment.Content = content
	if !row.UpdatedAt.IsZero() {
		comment.UpdatedAt = row.UpdatedAt
	}
	utils.JSON(ctx, http.StatusOK, serializeComment(comment))
}

// DeleteComment removes a comment (owner or admin).
func (c *CommentController) DeleteComment(ctx *gin.Context) {
	comment, ok := c.loadComment(ctx)
	if !ok {
		return
	}
	if !canModify(ctx, comment.AuthorID) {
		utils.Detail(ctx, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	if err := c.db.WithContext(ctx.Request.Context()).Delete(&comment).Error; err != nil {
		utils.Sugar.Errorw("delete comment failed", "comment_id", comment.ID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to delete comment")
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *CommentController) loadComment(ctx *gin.Context) (models.Comment, bool) {
	var comment models.Comment
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Detail(ctx, http.StatusNotFound, "Not found.")
		return comment, false
	}
	if err := c.db.WithContext(ctx.Request.Context()).Preload("Author").First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Detail(ctx, http.StatusNotFound, "Not found.")
			return comment, false
		}
		utils.Sugar.Errorw("load comment failed", "comment_id", id, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to load comment")
		return comment, false
	}
	return comment, true
}
