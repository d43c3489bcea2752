package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/creeps/board/config"
	"github.com/creeps/board/services"
	"github.com/creeps/board/utils"
)

var testRedis *miniredis.Miniredis

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "board-controllers")
	if err != nil {
		panic(err)
	}
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("ADMIN_USERNAMES", "admin")
	os.Setenv("GIN_PATH", filepath.Join(dir, "gin.log"))
	config.Load()
	gin.SetMode(gin.TestMode)

	testRedis, err = miniredis.Run()
	if err != nil {
		panic(err)
	}
	utils.UseRedis(redis.NewClient(&redis.Options{Addr: testRedis.Addr()}))

	code := m.Run()
	testRedis.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func bearer(t *testing.T, userID uint, username string) string {
	t.Helper()
	tok, err := utils.GenerateToken(userID, username, utils.AccessToken, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func doJSON(r http.Handler, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// fakeMedia records calls instead of talking to a media host.
type fakeMedia struct {
	mu         sync.Mutex
	uploads    []string
	destroys   []string
	uploadErr  error
	destroyErr error
}

func (f *fakeMedia) Upload(_ context.Context, _ []byte, publicID string) (*services.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, publicID)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &services.UploadResult{URL: "https://cdn.example.com/" + publicID + ".png", PublicID: publicID}, nil
}

func (f *fakeMedia) Destroy(_ context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys = append(f.destroys, publicID)
	return f.destroyErr
}

func (f *fakeMedia) calls() (uploads, destroys []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...), append([]string(nil), f.destroys...)
}
