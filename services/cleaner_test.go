package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingDeleter struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	panic map[string]bool
}

func (d *recordingDeleter) Destroy(ctx context.Context, id string) error {
	d.mu.Lock()
	d.calls = append(d.calls, id)
	d.mu.Unlock()
	if d.panic[id] {
		panic("boom")
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	return d.fail[id]
}

func (d *recordingDeleter) sortedCalls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]string(nil), d.calls...)
	sort.Strings(out)
	return out
}

type mockDeleter struct {
	mock.Mock
}

func (m *mockDeleter) Destroy(_ context.Context, id string) error {
	return m.Called(id).Error(0)
}

func TestAssetCleaner_OneCallPerID(t *testing.T) {
	m := &mockDeleter{}
	m.On("Destroy", "uploads/2024/05/aaa").Return(nil).Once()
	m.On("Destroy", "uploads/2024/05/bbb").Return(errors.New("not found")).Once()

	c := NewAssetCleaner(m, time.Second, nil)
	c.Schedule(ExtractPublicIDs(`<img data-public-id="uploads/2024/05/aaa"><img data-public-id="uploads/2024/05/bbb"><img data-public-id="uploads/2024/05/aaa">`))
	c.Wait()

	m.AssertExpectations(t)
}

func TestAssetCleaner(t *testing.T) {
	t.Run("no identifiers no calls", func(t *testing.T) {
		d := &recordingDeleter{}
		c := NewAssetCleaner(d, time.Second, nil)
		c.Schedule(nil)
		c.Schedule([]string{})
		c.Wait()
		assert.Empty(t, d.sortedCalls())
	})

	t.Run("one failure does not stop the rest", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		d := &recordingDeleter{
			fail:  map[string]error{"uploads/b": errors.New("rate limited")},
			panic: map[string]bool{"uploads/c": true},
		}
		c := NewAssetCleaner(d, time.Second, zap.New(core).Sugar())

		c.Schedule([]string{"uploads/a", "uploads/b", "uploads/c", "uploads/d"})
		c.Wait()

		assert.Equal(t, []string{"uploads/a", "uploads/b", "uploads/c", "uploads/d"}, d.sortedCalls())
		assert.Equal(t, 1, logs.FilterMessage("asset delete failed").Len())
		assert.Equal(t, 1, logs.FilterMessage("asset delete panicked").Len())
	})
}
