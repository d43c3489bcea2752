package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/creeps/board/middleware"
	"github.com/creeps/board/services"
)

var postColumns = []string{"id", "user_id", "title", "content", "category", "is_pinned", "views", "created_at", "updated_at"}

func newPostRouter(t *testing.T, db *gorm.DB, media *fakeMedia) (*gin.Engine, *services.AssetCleaner) {
	t.Helper()
	markers, err := services.NewMemoryMarkerStore(64)
	require.NoError(t, err)
	views := services.NewViewCounter(markers, services.NewGormViewStore(db), services.DefaultViewWindow)
	cleaner := services.NewAssetCleaner(media, time.Second, nil)
	pc := NewPostController(db, views, cleaner)

	r := gin.New()
	r.GET("/api/posts/:id/", middleware.OptionalAuth(), pc.GetPost)
	r.POST("/api/posts/", middleware.AuthRequired(), pc.CreatePost)
	r.PATCH("/api/posts/:id/", middleware.AuthRequired(), pc.UpdatePost)
	r.DELETE("/api/posts/:id/", middleware.AuthRequired(), pc.DeletePost)
	return r, cleaner
}

func TestGetPost_CountsOncePerIP(t *testing.T) {
	db, mock := newMockDB(t)
	r, _ := newPostRouter(t, db, &fakeMedia{})
	now := time.Now()

	expectPostLoad := func(views int) {
		mock.ExpectQuery("SELECT \\* FROM `posts`").
			WillReturnRows(sqlmock.NewRows(postColumns).AddRow(1, 2, "hello", "<p>hi</p>", "basic", false, views, now, now))
		mock.ExpectQuery("SELECT \\* FROM `users`").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "is_active"}).AddRow(2, "bob", true))
	}

	// first request: counted
	expectPostLoad(7)
	mock.ExpectExec("UPDATE `posts` SET `views`=views \\+ \\?").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `views` FROM `posts`").WillReturnRows(sqlmock.NewRows([]string{"views"}).AddRow(8))
	mock.ExpectQuery("FROM `comments`").WillReturnRows(sqlmock.NewRows([]string{"id", "post_id"}).AddRow(3, 1).AddRow(5, 1))

	w := doJSON(r, http.MethodGet, "/api/posts/1/", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body postBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 8, body.Views)
	assert.Equal(t, []uint{3, 5}, body.Comments)
	assert.Equal(t, "bob", body.AuthorDisplay)

	// second request from the same address inside the window: not counted
	expectPostLoad(8)
	mock.ExpectQuery("FROM `comments`").WillReturnRows(sqlmock.NewRows([]string{"id", "post_id"}))

	w = doJSON(r, http.MethodGet, "/api/posts/1/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 8, body.Views)
	assert.Empty(t, body.Comments)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPost_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	r, _ := newPostRouter(t, db, &fakeMedia{})

	mock.ExpectQuery("SELECT \\* FROM `posts`").WillReturnError(gorm.ErrRecordNotFound)

	w := doJSON(r, http.MethodGet, "/api/posts/99/", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPost_IncrementFailureIs500(t *testing.T) {
	db, mock := newMockDB(t)
	r, _ := newPostRouter(t, db, &fakeMedia{})
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM `posts`").
		WillReturnRows(sqlmock.NewRows(postColumns).AddRow(1, 2, "hello", "", "basic", false, 0, now, now))
	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "is_active"}).AddRow(2, "bob", true))
	mock.ExpectExec("UPDATE `posts`").WillReturnError(errors.New("lock wait timeout"))

	w := doJSON(r, http.MethodGet, "/api/posts/1/", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDeletePost_CleanupFailureKeeps204(t *testing.T) {
	db, mock := newMockDB(t)
	media := &fakeMedia{destroyErr: errors.New("cloud unavailable")}
	r, cleaner := newPostRouter(t, db, media)
	now := time.Now()

	content := `<p><img data-public-id="uploads/2024/05/aaa" src="https://res.cloudinary.com/demo/image/upload/v17/uploads/2024/05/aaa.png"></p>` +
		`<p><img src="https://res.cloudinary.com/demo/image/upload/q_auto/v18/uploads/2024/05/bbb.webp"></p>`
	mock.ExpectQuery("SELECT \\* FROM `posts`").
		WillReturnRows(sqlmock.NewRows(postColumns).AddRow(1, 2, "hello", content, "basic", false, 3, now, now))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `comments`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM `posts`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doJSON(r, http.MethodDelete, "/api/posts/1/", bearer(t, 2, "bob"), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	cleaner.Wait()
	_, destroys := media.calls()
	assert.ElementsMatch(t, []string{"uploads/2024/05/aaa", "uploads/2024/05/bbb"}, destroys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePost_NoImagesNoRemoteCalls(t *testing.T) {
	db, mock := newMockDB(t)
	media := &fakeMedia{}
	r, cleaner := newPostRouter(t, db, media)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM `posts`").
		WillReturnRows(sqlmock.NewRows(postColumns).AddRow(1, 2, "hello", "<p>text only</p>", "basic", false, 0, now, now))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `comments`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `posts`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := doJSON(r, http.MethodDelete, "/api/posts/1/", bearer(t, 9, "admin"), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	cleaner.Wait()
	_, destroys := media.calls()
	assert.Empty(t, destroys)
}

func TestDeletePost_FailedDeleteSchedulesNothing(t *testing.T) {
	db, mock := newMockDB(t)
	media := &fakeMedia{}
	r, cleaner := newPostRouter(t, db, media)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM `posts`").
		WillReturnRows(sqlmock.NewRows(postColumns).AddRow(1, 2, "hello", `<img data-public-id="uploads/x">`, "basic", false, 0, now, now))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `comments`").WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	w := doJSON(r, http.MethodDelete, "/api/posts/1/", bearer(t, 2, "bob"), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	cleaner.Wait()
	_, destroys := media.calls()
	assert.Empty(t, destroys)
}

func TestDeletePost_ForbiddenForOthers(t *testing.T) {
	db, mock := newMockDB(t)
	r, _ := newPostRouter(t, db, &fakeMedia{})
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM `posts`").
		WillReturnRows(sqlmock.NewRows(postColumns).AddRow(1, 2, "hello", "", "basic", false, 0, now, now))

	w := doJSON(r, http.MethodDelete, "/api/posts/1/", bearer(t, 3, "mallory"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/posts/1/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePost(t *testing.T) {
	t.Run("validation errors", func(t *testing.T) {
		db, _ := newMockDB(t)
		r, _ := newPostRouter(t, db, &fakeMedia{})

		long := "012345678901234567890123456789012345678901234567890"
		w := doJSON(r, http.MethodPost, "/api/posts/", bearer(t, 2, "bob"), map[string]string{"title": long})
		require.Equal(t, http.StatusBadRequest, w.Code)

		var body struct {
			Errors map[string][]string `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, body.Errors, "title")
		assert.Contains(t, body.Errors, "content")
	})

	t.Run("unknown category falls back to basic and content is sanitized", func(t *testing.T) {
		db, mock := newMockDB(t)
		r, _ := newPostRouter(t, db, &fakeMedia{})

		mock.ExpectExec("INSERT INTO `posts`").WillReturnResult(sqlmock.NewResult(11, 1))
		mock.ExpectQuery("SELECT \\* FROM `users`").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "is_active"}).AddRow(2, "bob", true))

		w := doJSON(r, http.MethodPost, "/api/posts/", bearer(t, 2, "bob"), map[string]interface{}{
			"title":     "  Hello  ",
			"content":   `<p>hi</p><script>alert(1)</script><img data-public-id="uploads/a" src="https://res.cloudinary.com/x.png">`,
			"category":  "nonsense",
			"is_pinned": true,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var body postBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.EqualValues(t, 11, body.ID)
		assert.Equal(t, "Hello", body.Title)
		assert.Equal(t, "basic", body.Category)
		assert.False(t, body.IsPinned)
		assert.NotContains(t, body.Content, "<script>")
		assert.Contains(t, body.Content, `data-public-id="uploads/a"`)
		assert.Zero(t, body.Views)
	})
}

func TestUpdatePost_PinningIsAdminOnly(t *testing.T) {
	db, mock := newMockDB(t)
	r, _ := newPostRouter(t, db, &fakeMedia{})
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM `posts`").
		WillReturnRows(sqlmock.NewRows(postColumns).AddRow(1, 2, "hello", "", "basic", false, 0, now, now))
	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "is_active"}).AddRow(2, "bob", false))
	mock.ExpectExec("UPDATE `posts` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM `comments`").WillReturnRows(sqlmock.NewRows([]string{"id", "post_id"}))

	w := doJSON(r, http.MethodPatch, "/api/posts/1/", bearer(t, 9, "admin"), map[string]interface{}{"is_pinned": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body postBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.IsPinned)
	assert.Equal(t, withdrawnLabel, body.AuthorDisplay)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePost_OwnerEditReflectedInResponse(t *testing.T) {
	db, mock := newMockDB(t)
	r, _ := newPostRouter(t, db, &fakeMedia{})
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM `posts`").
		WillReturnRows(sqlmock.NewRows(postColumns).AddRow(1, 2, "hello", "<p>old</p>", "basic", false, 4, now, now))
	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "is_active"}).AddRow(2, "bob", true))
	// only the posts row is written, never the preloaded author
	mock.ExpectExec("UPDATE `posts` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM `comments`").WillReturnRows(sqlmock.NewRows([]string{"id", "post_id"}))

	w := doJSON(r, http.MethodPatch, "/api/posts/1/", bearer(t, 2, "bob"), map[string]interface{}{
		"title":     " renamed ",
		"category":  "travel",
		"is_pinned": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body postBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "renamed", body.Title)
	assert.Equal(t, "travel", body.Category)
	assert.Equal(t, "<p>old</p>", body.Content)
	assert.False(t, body.IsPinned)
	assert.EqualValues(t, 4, body.Views)
	assert.Equal(t, "bob", body.AuthorDisplay)
	assert.NoError(t, mock.ExpectationsWereMet())
}
