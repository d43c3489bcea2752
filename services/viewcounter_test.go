package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type countingViews struct {
	hits atomic.Int64
	err  error
}

func (v *countingViews) IncrementViews(_ context.Context, _ uint) error {
	if v.err != nil {
		return v.err
	}
	v.hits.Add(1)
	return nil
}

type brokenMarkers struct{}

func (brokenMarkers) MarkOnce(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func newRedisCounter(t *testing.T) (*miniredis.Miniredis, *countingViews, *ViewCounter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	views := &countingViews{}
	return mr, views, NewViewCounter(NewRedisMarkerStore(rc), views, DefaultViewWindow)
}

func TestViewCounter_Hit(t *testing.T) {
	ctx := context.Background()

	t.Run("repeated hits from one ip count once", func(t *testing.T) {
		_, views, vc := newRedisCounter(t)
		counted := 0
		for i := 0; i < 5; i++ {
			ok, err := vc.Hit(ctx, 1, "10.0.0.1")
			require.NoError(t, err)
			if ok {
				counted++
			}
		}
		assert.Equal(t, 1, counted)
		assert.EqualValues(t, 1, views.hits.Load())
	})

	t.Run("distinct ips count separately", func(t *testing.T) {
		_, views, vc := newRedisCounter(t)
		for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.1"} {
			_, err := vc.Hit(ctx, 1, ip)
			require.NoError(t, err)
		}
		assert.EqualValues(t, 2, views.hits.Load())
	})

	t.Run("distinct posts count separately", func(t *testing.T) {
		_, views, vc := newRedisCounter(t)
		for _, id := range []uint{1, 2} {
			ok, err := vc.Hit(ctx, id, "10.0.0.1")
			require.NoError(t, err)
			assert.True(t, ok)
		}
		assert.EqualValues(t, 2, views.hits.Load())
	})

	t.Run("counts again after the window", func(t *testing.T) {
		mr, views, vc := newRedisCounter(t)
		_, err := vc.Hit(ctx, 7, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, mr.Exists("viewed:7:10.0.0.1"))

		mr.FastForward(6 * time.Second)

		ok, err := vc.Hit(ctx, 7, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.EqualValues(t, 2, views.hits.Load())
	})

	t.Run("concurrent duplicates count exactly once", func(t *testing.T) {
		_, views, vc := newRedisCounter(t)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := vc.Hit(ctx, 3, "192.168.1.9")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, views.hits.Load())
	})

	t.Run("marker store failure surfaces", func(t *testing.T) {
		views := &countingViews{}
		vc := NewViewCounter(brokenMarkers{}, views, DefaultViewWindow)
		ok, err := vc.Hit(ctx, 1, "10.0.0.1")
		assert.Error(t, err)
		assert.False(t, ok)
		assert.Zero(t, views.hits.Load())
	})

	t.Run("increment failure surfaces", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rc.Close()
		vc := NewViewCounter(NewRedisMarkerStore(rc), &countingViews{err: errors.New("db down")}, DefaultViewWindow)
		_, err := vc.Hit(ctx, 1, "10.0.0.1")
		assert.EqualError(t, err, "db down")
	})

	t.Run("redis unavailable surfaces", func(t *testing.T) {
		mr, views, vc := newRedisCounter(t)
		mr.Close()
		_, err := vc.Hit(ctx, 1, "10.0.0.1")
		assert.Error(t, err)
		assert.Zero(t, views.hits.Load())
	})
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

func TestGormViewStore_IncrementViews(t *testing.T) {
	update := regexp.QuoteMeta("UPDATE `posts` SET `views`=views + ? WHERE id = ?")

	t.Run("atomic update", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(update).WithArgs(1, 42).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewGormViewStore(db).IncrementViews(context.Background(), 42))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing post", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewGormViewStore(db).IncrementViews(context.Background(), 9)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(update).WillReturnError(errors.New("deadlock"))

		err := NewGormViewStore(db).IncrementViews(context.Background(), 9)
		assert.ErrorContains(t, err, "deadlock")
	})
}
