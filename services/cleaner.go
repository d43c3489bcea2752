package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDeleteTimeout bounds each remote delete call.
const DefaultDeleteTimeout = 10 * time.Second

// MediaDeleter removes a hosted asset by its public id.
type MediaDeleter interface {
	Destroy(ctx context.Context, publicID string) error
}

// AssetCleaner deletes hosted assets in the background after their post was deleted.
// Failures are logged and dropped; they never reach the request that triggered them.
type AssetCleaner struct {
	media   MediaDeleter
	timeout time.Duration
	log     *zap.SugaredLogger
	wg      sync.WaitGroup
}

func NewAssetCleaner(media MediaDeleter, timeout time.Duration, log *zap.SugaredLogger) *AssetCleaner {
	if timeout <= 0 {
		timeout = DefaultDeleteTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AssetCleaner{media: media, timeout: timeout, log: log}
}

// Schedule issues one delete per id. An empty list makes no calls.
func (c *AssetCleaner) Schedule(ids []string) {
	for _, id := range ids {
		c.wg.Add(1)
		go c.destroy(id)
	}
}

// Wait blocks until every scheduled delete finished.
func (c *AssetCleaner) Wait() {
	c.wg.Wait()
}

func (c *AssetCleaner) destroy(id string) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("asset delete panicked", "public_id", id, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.media.Destroy(ctx, id); err != nil {
		c.log.Warnw("asset delete failed", "public_id", id, "error", err)
		return
	}
	c.log.Debugw("asset deleted", "public_id", id)
}
