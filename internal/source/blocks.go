package source

import (
	"context"
	"fmt"
	"time"
)

// BlockFinder answers block/time questions by binary search over a Clock.
type BlockFinder struct {
	clock   Clock
	genesis uint64
}

// NewBlockFinder searches blocks in [genesis, head].
func NewBlockFinder(clock Clock, genesis uint64) *BlockFinder {
	return &BlockFinder{clock: clock, genesis: genesis}
}

// BlockForTimestamp returns the last block whose timestamp is not after ts.
func (b *BlockFinder) BlockForTimestamp(ctx context.Context, ts time.Time) (uint64, error) {
	if b.clock == nil {
		return 0, fmt.Errorf("clock is nil")
	}
	head, err := b.clock.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}
	if head < b.genesis {
		return 0, fmt.Errorf("%w: head %d below genesis %d", ErrOutOfRange, head, b.genesis)
	}
	genesisTS, err := b.clock.BlockTimestamp(ctx, b.genesis)
	if err != nil {
		return 0, fmt.Errorf("block %d timestamp: %w", b.genesis, err)
	}
	headTS, err := b.clock.BlockTimestamp(ctx, head)
	if err != nil {
		return 0, fmt.Errorf("block %d timestamp: %w", head, err)
	}

	unix := ts.Unix()
	if unix < 0 || uint64(unix) < genesisTS {
		return 0, fmt.Errorf("%w: %s is before block %d", ErrOutOfRange, ts.UTC().Format(time.RFC3339), b.genesis)
	}
	target := uint64(unix)
	if target > headTS {
		return 0, fmt.Errorf("%w: %s is after head block %d", ErrOutOfRange, ts.UTC().Format(time.RFC3339), head)
	}

	lo, hi := b.genesis, head
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		midTS, err := b.clock.BlockTimestamp(ctx, mid)
		if err != nil {
			return 0, fmt.Errorf("block %d timestamp: %w", mid, err)
		}
		if midTS <= target {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// TimestampAt returns the block time.
func (b *BlockFinder) TimestampAt(ctx context.Context, block uint64) (time.Time, error) {
	if b.clock == nil {
		return time.Time{}, fmt.Errorf("clock is nil")
	}
	head, err := b.clock.LatestBlockNumber(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest block: %w", err)
	}
	if block < b.genesis || block > head {
		return time.Time{}, fmt.Errorf("%w: block %d outside [%d, %d]", ErrOutOfRange, block, b.genesis, head)
	}
	ts, err := b.clock.BlockTimestamp(ctx, block)
	if err != nil {
		return time.Time{}, fmt.Errorf("block %d timestamp: %w", block, err)
	}
	return time.Unix(int64(ts), 0).UTC(), nil
}
