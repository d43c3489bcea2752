package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/creeps/board/models"
)

// DefaultViewWindow is how long one client IP is suppressed after a counted view.
const DefaultViewWindow = 5 * time.Second

// ViewStore increments a post's persisted view count.
type ViewStore interface {
	IncrementViews(ctx context.Context, postID uint) error
}

// GormViewStore increments views with a single UPDATE ... SET views = views + 1.
type GormViewStore struct {
	db *gorm.DB
}

func NewGormViewStore(db *gorm.DB) *GormViewStore {
	return &GormViewStore{db: db}
}

func (s *GormViewStore) IncrementViews(ctx context.Context, postID uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment views of post %d: %w", postID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ViewCounter counts at most one view per (post, client IP) within the window.
type ViewCounter struct {
	markers MarkerStore
	views   ViewStore
	window  time.Duration
}

func NewViewCounter(markers MarkerStore, views ViewStore, window time.Duration) *ViewCounter {
	if window <= 0 {
		window = DefaultViewWindow
	}
	return &ViewCounter{markers: markers, views: views, window: window}
}

func viewKey(postID uint, clientIP string) string {
	return fmt.Sprintf("viewed:%d:%s", postID, clientIP)
}

// Hit records a view of postID from clientIP. It reports whether the view was counted.
// The marker is created atomically, so among concurrent duplicate requests exactly one counts.
func (vc *ViewCounter) Hit(ctx context.Context, postID uint, clientIP string) (bool, error) {
	created, err := vc.markers.MarkOnce(ctx, viewKey(postID, clientIP), vc.window)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}
	if err := vc.views.IncrementViews(ctx, postID); err != nil {
		return false, err
	}
	return true, nil
}
