package source

import (
	"context"
	"time"

	"slippageScope/internal/model"
)

// Source resolves a pool at a historical block to a snapshot.
// Results for one (poolID, block) pair never change.
type Source interface {
	Snapshot(ctx context.Context, poolID string, block uint64) (model.PoolSnapshot, error)
}

// Blocks maps between block numbers and timestamps.
type Blocks interface {
	BlockForTimestamp(ctx context.Context, ts time.Time) (uint64, error)
	TimestampAt(ctx context.Context, block uint64) (time.Time, error)
}

// Clock is the part of a ledger client that knows block heights and times.
type Clock interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}
