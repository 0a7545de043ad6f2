package source

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"slippageScope/internal/dex"
	"slippageScope/internal/model"
	"slippageScope/internal/registry"
)

// Config tunes how the forked source talks to the ledger.
type Config struct {
	ChainID      uint64
	TickWindow   int32
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// RateLimit caps calls per second; zero disables pacing.
	RateLimit   float64
	Concurrency int
}

// Forked reads pool state at a historical block through eth_call.
type Forked struct {
	cfg      Config
	caller   dex.Caller
	clock    Clock
	registry registry.Registry
	blocks   *BlockFinder
	tokens   *tokenCache
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewForked wires a forked-state source. clock may be nil when block/time
// lookups are not needed.
func NewForked(cfg Config, caller dex.Caller, clock Clock, reg registry.Registry, logger *zap.Logger) *Forked {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TickWindow <= 0 {
		cfg.TickWindow = model.DefaultTickWindow
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	f := &Forked{
		cfg:      cfg,
		caller:   caller,
		clock:    clock,
		registry: reg,
		tokens:   newTokenCache(),
		logger:   logger,
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if clock != nil {
		f.blocks = NewBlockFinder(pacedClock{f: f}, 0)
	}
	return f
}

// Snapshot reads the pool state at block.
func (f *Forked) Snapshot(ctx context.Context, poolID string, block uint64) (model.PoolSnapshot, error) {
	info, err := f.lookup(ctx, poolID)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	if block < info.StartBlock {
		return model.PoolSnapshot{}, fmt.Errorf("%w: block %d predates pool %s start block %d", ErrUnresolvedBlock, block, info.Symbol, info.StartBlock)
	}
	if f.clock != nil {
		head, err := f.head(ctx)
		if err != nil {
			return model.PoolSnapshot{}, err
		}
		if block > head {
			return model.PoolSnapshot{}, fmt.Errorf("%w: block %d is after head %d", ErrUnresolvedBlock, block, head)
		}
	}

	pool := common.HexToAddress(info.Address)
	log := f.logger.With(zap.String("pool", info.Symbol), zap.Uint64("block", block))
	log.Debug("reading pool state")

	var immutables dex.PoolImmutables
	if err := f.call(ctx, "pool immutables", func(ctx context.Context) error {
		var err error
		immutables, err = dex.FetchPoolImmutables(ctx, f.caller, pool, block)
		return err
	}); err != nil {
		return model.PoolSnapshot{}, err
	}
	if immutables.TickSpacing <= 0 {
		return model.PoolSnapshot{}, fmt.Errorf("pool %s: invalid tick spacing %d", info.Symbol, immutables.TickSpacing)
	}
	if immutables.Fee != info.Fee || immutables.TickSpacing != info.TickSpacing {
		log.Warn("registry disagrees with chain",
			zap.Uint32("registry_fee", info.Fee),
			zap.Uint32("chain_fee", immutables.Fee),
			zap.Int32("registry_tick_spacing", info.TickSpacing),
			zap.Int32("chain_tick_spacing", immutables.TickSpacing),
		)
	}

	token0, err := f.token(ctx, immutables.Token0, block, info.Token0)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	token1, err := f.token(ctx, immutables.Token1, block, info.Token1)
	if err != nil {
		return model.PoolSnapshot{}, err
	}

	var slot0 dex.Slot0
	if err := f.call(ctx, "slot0", func(ctx context.Context) error {
		var err error
		slot0, err = dex.FetchSlot0(ctx, f.caller, pool, block)
		return err
	}); err != nil {
		return model.PoolSnapshot{}, err
	}

	var liquidity *big.Int
	if err := f.call(ctx, "liquidity", func(ctx context.Context) error {
		var err error
		liquidity, err = dex.FetchLiquidity(ctx, f.caller, pool, block)
		return err
	}); err != nil {
		return model.PoolSnapshot{}, err
	}

	snapshot := model.PoolSnapshot{
		PoolID:       info.Symbol,
		Address:      pool.Hex(),
		Block:        block,
		Token0:       token0,
		Token1:       token1,
		FeeTier:      immutables.Fee,
		TickSpacing:  immutables.TickSpacing,
		CurrentTick:  slot0.Tick,
		SqrtPriceX96: slot0.SqrtPriceX96,
		Liquidity:    liquidity,
		TickWindow:   f.cfg.TickWindow,
	}

	ticks, err := f.ticks(ctx, pool, snapshot)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	snapshot.Ticks = ticks

	log.Info("pool state loaded",
		zap.Int32("tick", snapshot.CurrentTick),
		zap.String("liquidity", liquidity.String()),
		zap.Int("initialized_ticks", len(ticks)),
	)
	return snapshot, nil
}

// DefaultBlock picks the block halfway between the pool's first block and the head.
func (f *Forked) DefaultBlock(ctx context.Context, poolID string) (uint64, error) {
	info, err := f.lookup(ctx, poolID)
	if err != nil {
		return 0, err
	}
	if f.clock == nil {
		return 0, fmt.Errorf("default block needs a chain clock")
	}
	head, err := f.head(ctx)
	if err != nil {
		return 0, err
	}
	first := info.StartBlock + 1
	if head < first {
		return 0, fmt.Errorf("%w: head %d precedes pool %s start block %d", ErrUnresolvedBlock, head, info.Symbol, info.StartBlock)
	}
	return first + (head-first)/2, nil
}

// BlockForTimestamp returns the last block at or before ts.
func (f *Forked) BlockForTimestamp(ctx context.Context, ts time.Time) (uint64, error) {
	if f.blocks == nil {
		return 0, fmt.Errorf("block lookup needs a chain clock")
	}
	return f.blocks.BlockForTimestamp(ctx, ts)
}

// TimestampAt returns the block time of block.
func (f *Forked) TimestampAt(ctx context.Context, block uint64) (time.Time, error) {
	if f.blocks == nil {
		return time.Time{}, fmt.Errorf("block lookup needs a chain clock")
	}
	return f.blocks.TimestampAt(ctx, block)
}

// Lookup resolves a pool through the configured registry.
func (f *Forked) Lookup(ctx context.Context, poolID string) (model.PoolInfo, error) {
	return f.lookup(ctx, poolID)
}

func (f *Forked) lookup(ctx context.Context, poolID string) (model.PoolInfo, error) {
	if f.registry == nil {
		return model.PoolInfo{}, fmt.Errorf("pool registry is nil")
	}
	info, err := f.registry.Lookup(ctx, f.cfg.ChainID, poolID)
	if err != nil {
		return model.PoolInfo{}, fmt.Errorf("lookup pool %s: %w", poolID, err)
	}
	return info, nil
}

func (f *Forked) head(ctx context.Context) (uint64, error) {
	var head uint64
	err := f.call(ctx, "latest block", func(ctx context.Context) error {
		var err error
		head, err = f.clock.LatestBlockNumber(ctx)
		return err
	})
	return head, err
}

func (f *Forked) token(ctx context.Context, address common.Address, block uint64, fallbackSymbol string) (model.Token, error) {
	if token, ok := f.tokens.Get(address); ok {
		return token, nil
	}
	var token model.Token
	if err := f.call(ctx, "token "+address.Hex(), func(ctx context.Context) error {
		var err error
		token, err = dex.FetchToken(ctx, f.caller, address, block, f.logger)
		return err
	}); err != nil {
		return model.Token{}, err
	}
	if strings.TrimSpace(token.Symbol) == "" {
		token.Symbol = fallbackSymbol
	}
	f.tokens.Set(address, token)
	return token, nil
}

// ticks reads every spacing-aligned tick within the window around the active range.
func (f *Forked) ticks(ctx context.Context, pool common.Address, snapshot model.PoolSnapshot) ([]model.TickLiquidity, error) {
	active := snapshot.ActiveRange()
	lower := active.Lower - f.cfg.TickWindow*snapshot.TickSpacing
	upper := active.Upper + f.cfg.TickWindow*snapshot.TickSpacing

	candidates := make([]int32, 0, (upper-lower)/snapshot.TickSpacing+1)
	for tick := lower; tick <= upper; tick += snapshot.TickSpacing {
		candidates = append(candidates, tick)
	}
	nets := make([]*big.Int, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for i, tick := range candidates {
		i, tick := i, tick
		g.Go(func() error {
			return f.call(gctx, fmt.Sprintf("tick %d", tick), func(ctx context.Context) error {
				info, err := dex.FetchTick(ctx, f.caller, pool, tick, snapshot.Block)
				if err != nil {
					return err
				}
				if info.Initialized && info.LiquidityNet.Sign() != 0 {
					nets[i] = info.LiquidityNet
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.TickLiquidity, 0, len(candidates))
	for i, net := range nets {
		if net != nil {
			out = append(out, model.TickLiquidity{Tick: candidates[i], LiquidityNet: net})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out, nil
}

// call paces, bounds and retries one ledger read. Failures that survive every retry
// are reported as ErrRPCUnavailable; cancellation by the caller is returned as is.
// Reverts and ABI decode errors repeat on every attempt, so they are not retried
// and keep their dex classification.
func (f *Forked) call(ctx context.Context, name string, fn func(context.Context) error) error {
	err := withRetry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}
		callCtx := ctx
		if f.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
			defer cancel()
		}
		err := fn(callCtx)
		if errors.Is(err, dex.ErrDecode) || errors.Is(err, dex.ErrReverted) {
			return permanent(err)
		}
		return err
	}, func(attempt int, err error) {
		f.logger.Warn("rpc call failed, retrying", zap.String("call", name), zap.Int("attempt", attempt), zap.Error(err))
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", name, ctxErr)
	}
	if errors.Is(err, dex.ErrDecode) || errors.Is(err, dex.ErrReverted) {
		return fmt.Errorf("%s: %w", name, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timed out after %s: %w", ErrRPCUnavailable, name, f.cfg.Timeout, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrRPCUnavailable, name, err)
}

// pacedClock routes block/time reads through the same pacing and retry policy.
type pacedClock struct {
	f *Forked
}

func (c pacedClock) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.f.head(ctx)
}

func (c pacedClock) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var ts uint64
	err := c.f.call(ctx, fmt.Sprintf("block %d timestamp", number), func(ctx context.Context) error {
		var err error
		ts, err = c.f.clock.BlockTimestamp(ctx, number)
		return err
	})
	return ts, err
}
