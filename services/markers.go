package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// MarkerStore creates short-lived markers. MarkOnce must be a single atomic
// "set if absent with expiry": it reports true only for the caller that created the marker.
type MarkerStore interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisMarkerStore keeps markers in Redis, shared by every instance.
type RedisMarkerStore struct {
	client *redis.Client
}

func NewRedisMarkerStore(client *redis.Client) *RedisMarkerStore {
	return &RedisMarkerStore{client: client}
}

// MarkOnce issues SET key 1 NX EX ttl.
func (s *RedisMarkerStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set marker %s: %w", key, err)
	}
	return ok, nil
}

// DefaultMemoryMarkers bounds the in-process marker table.
const DefaultMemoryMarkers = 100_000

// MemoryMarkerStore keeps markers in a bounded LRU of expiry times.
// Only suitable for a single instance; an entry evicted before it expires may let a view count twice.
type MemoryMarkerStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
	now   func() time.Time
}

func NewMemoryMarkerStore(size int) (*MemoryMarkerStore, error) {
	if size <= 0 {
		size = DefaultMemoryMarkers
	}
	c, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &MemoryMarkerStore{cache: c, now: time.Now}, nil
}

// MarkOnce tests and inserts under one lock.
func (s *MemoryMarkerStore) MarkOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.cache.Get(key); ok && now.Before(expires) {
		return false, nil
	}
	s.cache.Add(key, now.Add(ttl))
	return true, nil
}
