package controllers

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/creeps/board/models"
	"github.com/creeps/board/services"
	"github.com/creeps/board/utils"
)

const maxTitleLength = 50

// PostController manages CRUD operations for posts.
type PostController struct {
	db      *gorm.DB
	views   *services.ViewCounter
	cleaner *services.AssetCleaner
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, views *services.ViewCounter, cleaner *services.AssetCleaner) *PostController {
	return &PostController{db: db, views: views, cleaner: cleaner}
}

type postRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Category *string `json:"category"`
	IsPinned *bool   `json:"is_pinned"`
}

// validate checks the present fields; full requires title and content.
func (r *postRequest) validate(full bool) utils.FieldErrors {
	errs := utils.FieldErrors{}
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		r.Title = &t
	}
	if full && (r.Title == nil || *r.Title == "") {
		errs.Add("title", "This field is required.")
	} else if r.Title != nil {
		if *r.Title == "" {
			errs.Add("title", "This field may not be blank.")
		} else if utf8.RuneCountInString(*r.Title) > maxTitleLength {
			errs.Add("title", "Ensure this field has no more than 50 characters.")
		}
	}
	if full && (r.Content == nil || strings.TrimSpace(*r.Content) == "") {
		errs.Add("content", "This field is required.")
	} else if r.Content != nil && strings.TrimSpace(*r.Content) == "" {
		errs.Add("content", "This field may not be blank.")
	}
	return errs
}

func normalizeCategory(c string) string {
	c = strings.TrimSpace(c)
	if models.IsValidCategory(c) {
		return c
	}
	return models.CategoryBasic
}

// ListPosts returns paginated posts, pinned first then newest.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	query := p.db.WithContext(ctx.Request.Context()).Model(&models.Post{})
	if c := strings.TrimSpace(ctx.Query("category")); models.IsValidCategory(c) {
		query = query.Where("category = ?", c)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Sugar.Errorw("count posts failed", "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to count posts")
		return
	}

	var posts []models.Post
	if err := query.Preload("User").
		Order("is_pinned DESC").Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error; err != nil {
		utils.Sugar.Errorw("list posts failed", "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to retrieve posts")
		return
	}

	ids := make([]uint, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}
	commentIDs, err := p.commentIDsByPost(ctx, ids)
	if err != nil {
		utils.Sugar.Errorw("load comment ids failed", "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to retrieve posts")
		return
	}

	items := make([]postBody, 0, len(posts))
	for _, post := range posts {
		items = append(items, serializePost(post, commentIDs[post.ID]))
	}

	utils.JSON(ctx, http.StatusOK, gin.H{
		"items":      items,
		"pagination": paginationBody(page, pageSize, total),
	})
}

// CreatePost allows authenticated users to create new posts.
func (p *PostController) CreatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Detail(ctx, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return
	}

	var req postRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}
	if errs := req.validate(true); len(errs) > 0 {
		utils.Invalid(ctx, errs)
		return
	}

	post := models.Post{
		UserID:   userID,
		Title:    *req.Title,
		Content:  utils.Sanitize(*req.Content),
		Category: models.CategoryBasic,
	}
	if req.Category != nil {
		post.Category = normalizeCategory(*req.Category)
	}
	if req.IsPinned != nil && isAdmin(ctx) {
		post.IsPinned = *req.IsPinned
	}

	if err := p.db.WithContext(ctx.Request.Context()).Create(&post).Error; err != nil {
		utils.Sugar.Errorw("create post failed", "user_id", userID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to create post")
		return
	}
	if err := p.db.WithContext(ctx.Request.Context()).First(&post.User, userID).Error; err != nil {
		utils.Sugar.Warnw("load post author failed", "user_id", userID, "error", err)
	}

	utils.JSON(ctx, http.StatusCreated, serializePost(post, nil))
}

// GetPost returns one post and counts the view, at most once per client IP per window.
func (p *PostController) GetPost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Detail(ctx, http.StatusNotFound, "Not found.")
		return
	}
	post, found := p.loadPost(ctx, id, true)
	if !found {
		return
	}

	reqCtx := ctx.Request.Context()
	counted, err := p.views.Hit(reqCtx, post.ID, utils.ClientIP(ctx.Request))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			utils.Detail(ctx, http.StatusNotFound, "Not found.")
			return
		}
		utils.Sugar.Errorw("count view failed", "post_id", post.ID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to count view")
		return
	}
	if counted {
		var views []uint
		if err := p.db.WithContext(reqCtx).Model(&models.Post{}).Where("id = ?", post.ID).Pluck("views", &views).Error; err != nil {
			utils.Sugar.Errorw("reload views failed", "post_id", post.ID, "error", err)
			utils.Detail(ctx, http.StatusInternalServerError, "failed to load post")
			return
		}
		if len(views) > 0 {
			post.Views = views[0]
		}
	}

	commentIDs, err := p.commentIDsByPost(ctx, []uint{post.ID})
	if err != nil {
		utils.Sugar.Errorw("load comment ids failed", "post_id", post.ID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to load post")
		return
	}

	utils.JSON(ctx, http.StatusOK, serializePost(post, commentIDs[post.ID]))
}

// UpdatePost handles PUT (full) and PATCH (partial) updates by the owner or an admin.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Detail(ctx, http.StatusNotFound, "Not found.")
		return
	}
	post, found := p.loadPost(ctx, id, true)
	if !found {
		return
	}
	if !canModify(ctx, post.UserID) {
		utils.Detail(ctx, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}

	var req postRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}
	if errs := req.validate(ctx.Request.Method == http.MethodPut); len(errs) > 0 {
		utils.Invalid(ctx, errs)
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Content != nil {
		updates["content"] = utils.Sanitize(*req.Content)
	}
	if req.Category != nil {
		updates["category"] = normalizeCategory(*req.Category)
	}
	if req.IsPinned != nil && isAdmin(ctx) {
		updates["is_pinned"] = *req.IsPinned
	}

	if len(updates) > 0 {
		// a bare model so the preloaded author is not written back
		row := models.Post{ID: post.ID}
		if err := p.db.WithContext(ctx.Request.Context()).Model(&row).Updates(updates).Error; err != nil {
			utils.Sugar.Errorw("update post failed", "post_id", post.ID, "error", err)
			utils.Detail(ctx, http.StatusInternalServerError, "failed to update post")
			return
		}
		applyPostUpdates(&post, updates)
		if !row.UpdatedAt.IsZero() {
			post.UpdatedAt = row.UpdatedAt
		}
	}

	commentIDs, err := p.commentIDsByPost(ctx, []uint{post.ID})
	if err != nil {
		utils.Sugar.Errorw("load comment ids failed", "post_id", post.ID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to load post")
		return
	}
	utils.JSON(ctx, http.StatusOK, serializePost(post, commentIDs[post.ID]))
}

// DeletePost removes the post and its comments, then schedules deletion of the
// hosted images its content referenced. The response does not wait for the cleanup.
func (p *PostController) DeletePost(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Detail(ctx, http.StatusNotFound, "Not found.")
		return
	}
	post, found := p.loadPost(ctx, id, false)
	if !found {
		return
	}
	if !canModify(ctx, post.UserID) {
		utils.Detail(ctx, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}

	// extracted before the row is gone
	publicIDs := services.ExtractPublicIDs(post.Content)

	err := p.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		utils.Sugar.Errorw("delete post failed", "post_id", post.ID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to delete post")
		return
	}

	p.cleaner.Schedule(publicIDs)
	ctx.Status(http.StatusNoContent)
}

func applyPostUpdates(post *models.Post, updates map[string]interface{}) {
	if v, ok := updates["title"].(string); ok {
		post.Title = v
	}
	if v, ok := updates["content"].(string); ok {
		post.Content = v
	}
	if v, ok := updates["category"].(string); ok {
		post.Category = v
	}
	if v, ok := updates["is_pinned"].(bool); ok {
		post.IsPinned = v
	}
}

// loadPost fetches a post and writes the 404/500 response itself when it cannot.
func (p *PostController) loadPost(ctx *gin.Context, id uint, withAuthor bool) (models.Post, bool) {
	var post models.Post
	q := p.db.WithContext(ctx.Request.Context())
	if withAuthor {
		q = q.Preload("User")
	}
	if err := q.First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Detail(ctx, http.StatusNotFound, "Not found.")
			return post, false
		}
		utils.Sugar.Errorw("load post failed", "post_id", id, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to load post")
		return post, false
	}
	return post, true
}

// commentIDsByPost returns the comment ids of each post in ascending order.
func (p *PostController) commentIDsByPost(ctx *gin.Context, postIDs []uint) (map[uint][]uint, error) {
	out := make(map[uint][]uint, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ID     uint
		PostID uint
	}
	if err := p.db.WithContext(ctx.Request.Context()).Model(&models.Comment{}).
		Select("id", "post_id").
		Where("post_id IN ?", utils.Unique(postIDs)).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.PostID] = append(out[r.PostID], r.ID)
	}
	return out, nil
}
