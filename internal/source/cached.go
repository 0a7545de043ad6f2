package source

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"slippageScope/internal/model"
)

// DefaultCacheSize bounds the number of memoized snapshots.
const DefaultCacheSize = 64

type snapshotKey struct {
	pool  string
	block uint64
}

// Cached memoizes snapshots by (pool, block). Concurrent misses for the same key share
// one upstream read. Callers always receive their own deep copy.
type Cached struct {
	next   Source
	cache  *lru.Cache[snapshotKey, model.PoolSnapshot]
	group  singleflight.Group
	logger *zap.Logger
}

var _ Source = (*Cached)(nil)

// NewCached wraps next with a read-through cache holding up to size snapshots.
func NewCached(next Source, size int, logger *zap.Logger) (*Cached, error) {
	if next == nil {
		return nil, fmt.Errorf("source is nil")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[snapshotKey, model.PoolSnapshot](size)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	return &Cached{next: next, cache: cache, logger: logger}, nil
}

func (c *Cached) Snapshot(ctx context.Context, poolID string, block uint64) (model.PoolSnapshot, error) {
	key := snapshotKey{pool: strings.ToUpper(strings.TrimSpace(poolID)), block: block}
	if snapshot, ok := c.cache.Get(key); ok {
		c.logger.Debug("snapshot cache hit", zap.String("pool", key.pool), zap.Uint64("block", block))
		return snapshot.Clone(), nil
	}

	// The shared read must outlive whichever caller started it; each caller
	// still stops waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprintf("%s@%d", key.pool, key.block), func() (interface{}, error) {
		if snapshot, ok := c.cache.Get(key); ok {
			return snapshot, nil
		}
		snapshot, err := c.next.Snapshot(shared, poolID, block)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, snapshot.Clone())
		return snapshot, nil
	})
	select {
	case <-ctx.Done():
		return model.PoolSnapshot{}, fmt.Errorf("snapshot %s@%d: %w", key.pool, block, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return model.PoolSnapshot{}, res.Err
		}
		return res.Val.(model.PoolSnapshot).Clone(), nil
	}
}

// Len reports how many snapshots are cached.
func (c *Cached) Len() int {
	return c.cache.Len()
}
