package source

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"slippageScope/internal/dex"
	"slippageScope/internal/dex/dextest"
	"slippageScope/internal/model"
	"slippageScope/internal/registry"
)

type fakeClock struct {
	head uint64
	base uint64
	step uint64
}

func (c *fakeClock) LatestBlockNumber(context.Context) (uint64, error) {
	return c.head, nil
}

func (c *fakeClock) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	if number > c.head {
		return 0, fmt.Errorf("block %d not found", number)
	}
	return c.base + number*c.step, nil
}

func newFixture(t *testing.T) (*dextest.Chain, *fakeClock, registry.Registry) {
	t.Helper()
	chain := &dextest.Chain{
		Pool:         common.HexToAddress("0x8ad599c3a0ff1de082011efddc58f1908eb6e6d8"),
		Token0:       dextest.Token{Address: common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"), Decimals: 6, Symbol: "USDC"},
		Token1:       dextest.Token{Address: common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"), Decimals: 18},
		Fee:          3000,
		TickSpacing:  60,
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		Tick:         0,
		Liquidity:    big.NewInt(1_000_000),
		Ticks: map[int32]*big.Int{
			-600: big.NewInt(400),
			-60:  big.NewInt(100),
			120:  big.NewInt(-100),
			6000: big.NewInt(7),
		},
	}
	reg, err := registry.NewStatic([]model.PoolInfo{{
		ChainID:    1,
		Symbol:     "USDC/WETH-3000",
		Address:    chain.Pool.Hex(),
		StartBlock: 1000,
	}})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	return chain, &fakeClock{head: 5000, base: 1_600_000_000, step: 12}, reg
}

func testConfig() Config {
	return Config{ChainID: 1, TickWindow: 10, Timeout: time.Second, MaxRetries: 0, RetryBackoff: time.Millisecond}
}

func TestForkedSnapshot(t *testing.T) {
	chain, clock, reg := newFixture(t)
	src := NewForked(testConfig(), chain, clock, reg, nil)

	snap, err := src.Snapshot(context.Background(), "usdc/weth-3000", 2000)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.PoolID != "USDC/WETH-3000" || snap.Block != 2000 || snap.Address != chain.Pool.Hex() {
		t.Fatalf("identity fields = %+v", snap)
	}
	if snap.Token0.Symbol != "USDC" || snap.Token0.Decimals != 6 {
		t.Fatalf("token0 = %+v", snap.Token0)
	}
	// Token1 has no symbol on chain; the registry symbol fills in.
	if snap.Token1.Symbol != "WETH" || snap.Token1.Decimals != 18 {
		t.Fatalf("token1 = %+v", snap.Token1)
	}
	if snap.FeeTier != 3000 || snap.TickSpacing != 60 || snap.CurrentTick != 0 || snap.TickWindow != 10 {
		t.Fatalf("pool fields = %+v", snap)
	}
	if snap.Liquidity.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("liquidity = %s", snap.Liquidity)
	}
	want := []int32{-600, -60, 120}
	got := make([]int32, 0, len(snap.Ticks))
	for _, tl := range snap.Ticks {
		got = append(got, tl.Tick)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ticks = %v, want %v", got, want)
	}
}

func TestForkedSnapshotIsDeterministic(t *testing.T) {
	chain, clock, reg := newFixture(t)
	src := NewForked(testConfig(), chain, clock, reg, nil)

	first, err := src.Snapshot(context.Background(), "USDC/WETH-3000", 2000)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	second, err := src.Snapshot(context.Background(), "USDC/WETH-3000", 2000)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("snapshots differ:\n%+v\n%+v", first, second)
	}
}

func TestForkedReadsTokensOnce(t *testing.T) {
	chain, clock, reg := newFixture(t)
	src := NewForked(testConfig(), chain, clock, reg, nil)

	first, err := src.Snapshot(context.Background(), "USDC/WETH-3000", 2000)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	firstCalls := chain.Calls()

	second, err := src.Snapshot(context.Background(), "USDC/WETH-3000", 3000)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if secondCalls := chain.Calls() - firstCalls; secondCalls >= firstCalls {
		t.Fatalf("second snapshot made %d calls, first made %d", secondCalls, firstCalls)
	}
	if !reflect.DeepEqual(first.Token0, second.Token0) || !reflect.DeepEqual(first.Token1, second.Token1) {
		t.Fatalf("token metadata differs between blocks")
	}
}

func TestForkedSnapshotErrors(t *testing.T) {
	ctx := context.Background()

	chain, clock, reg := newFixture(t)
	src := NewForked(testConfig(), chain, clock, reg, nil)
	if _, err := src.Snapshot(ctx, "USDC/WETH-3000", 999); !errors.Is(err, ErrUnresolvedBlock) {
		t.Fatalf("before start block: expected ErrUnresolvedBlock, got %v", err)
	}
	if _, err := src.Snapshot(ctx, "USDC/WETH-3000", 5001); !errors.Is(err, ErrUnresolvedBlock) {
		t.Fatalf("after head: expected ErrUnresolvedBlock, got %v", err)
	}
	if _, err := src.Snapshot(ctx, "WBTC/WETH-500", 2000); !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}

	chain.Err = errors.New("connection refused")
	cfg := testConfig()
	cfg.MaxRetries = 2
	if _, err := NewForked(cfg, chain, clock, reg, nil).Snapshot(ctx, "USDC/WETH-3000", 2000); !errors.Is(err, ErrRPCUnavailable) {
		t.Fatalf("expected ErrRPCUnavailable, got %v", err)
	}
	if calls := chain.Calls(); calls != 3 {
		t.Fatalf("calls = %d, want 3 attempts", calls)
	}
}

func TestForkedSnapshotTimeout(t *testing.T) {
	chain, clock, reg := newFixture(t)
	chain.Delay = 200 * time.Millisecond
	cfg := testConfig()
	cfg.Timeout = 5 * time.Millisecond

	_, err := NewForked(cfg, chain, clock, reg, nil).Snapshot(context.Background(), "USDC/WETH-3000", 2000)
	if !errors.Is(err, ErrRPCUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ErrRPCUnavailable wrapping deadline, got %v", err)
	}
}

func TestForkedSnapshotRetriesTransientFailures(t *testing.T) {
	chain, clock, reg := newFixture(t)
	chain.FailFirst = 2
	cfg := testConfig()
	cfg.MaxRetries = 3

	if _, err := NewForked(cfg, chain, clock, reg, nil).Snapshot(context.Background(), "USDC/WETH-3000", 2000); err != nil {
		t.Fatalf("Snapshot after transient failures: %v", err)
	}
}

func TestForkedSnapshotCancelled(t *testing.T) {
	chain, clock, reg := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewForked(testConfig(), chain, clock, reg, nil).Snapshot(ctx, "USDC/WETH-3000", 2000)
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrRPCUnavailable) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestForkedDefaultBlock(t *testing.T) {
	chain, clock, reg := newFixture(t)
	block, err := NewForked(testConfig(), chain, clock, reg, nil).DefaultBlock(context.Background(), "USDC/WETH-3000")
	if err != nil {
		t.Fatalf("DefaultBlock: %v", err)
	}
	// Halfway between 1001 and 5000.
	if block != 3000 {
		t.Fatalf("default block = %d, want 3000", block)
	}
}

func TestBlockForTimestamp(t *testing.T) {
	clock := &fakeClock{head: 1000, base: 1_600_000_000, step: 12}
	finder := NewBlockFinder(clock, 0)
	ctx := context.Background()

	tests := []struct {
		ts   uint64
		want uint64
	}{
		{ts: 1_600_000_000, want: 0},
		{ts: 1_600_000_011, want: 0},
		{ts: 1_600_000_012, want: 1},
		{ts: 1_600_006_000, want: 500},
		{ts: 1_600_006_005, want: 500},
		{ts: 1_600_012_000, want: 1000},
	}
	for _, tc := range tests {
		got, err := finder.BlockForTimestamp(ctx, time.Unix(int64(tc.ts), 0))
		if err != nil {
			t.Fatalf("BlockForTimestamp(%d): %v", tc.ts, err)
		}
		if got != tc.want {
			t.Fatalf("BlockForTimestamp(%d) = %d, want %d", tc.ts, got, tc.want)
		}
		at, err := finder.TimestampAt(ctx, got)
		if err != nil {
			t.Fatalf("TimestampAt(%d): %v", got, err)
		}
		if uint64(at.Unix()) > tc.ts {
			t.Fatalf("block %d time %d after target %d", got, at.Unix(), tc.ts)
		}
	}

	if _, err := finder.BlockForTimestamp(ctx, time.Unix(1_599_999_999, 0)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("before genesis: expected ErrOutOfRange, got %v", err)
	}
	if _, err := finder.BlockForTimestamp(ctx, time.Unix(1_600_012_001, 0)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("after head: expected ErrOutOfRange, got %v", err)
	}
	if _, err := finder.TimestampAt(ctx, 1001); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("TimestampAt past head: expected ErrOutOfRange, got %v", err)
	}
}

func TestForkedBlockLookupsUseClock(t *testing.T) {
	chain, clock, reg := newFixture(t)
	src := NewForked(testConfig(), chain, clock, reg, nil)
	block, err := src.BlockForTimestamp(context.Background(), time.Unix(1_600_000_000+12*4321, 0))
	if err != nil || block != 4321 {
		t.Fatalf("BlockForTimestamp = %d, %v", block, err)
	}
	ts, err := src.TimestampAt(context.Background(), 4321)
	if err != nil || ts.Unix() != 1_600_000_000+12*4321 {
		t.Fatalf("TimestampAt = %v, %v", ts, err)
	}
}

type countingSource struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *countingSource) Snapshot(_ context.Context, poolID string, block uint64) (model.PoolSnapshot, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if poolID == "missing" {
		return model.PoolSnapshot{}, ErrUnknownPool
	}
	return model.PoolSnapshot{
		PoolID:       poolID,
		Block:        block,
		TickSpacing:  60,
		SqrtPriceX96: big.NewInt(1 << 40),
		Liquidity:    big.NewInt(42),
		Ticks:        []model.TickLiquidity{{Tick: 60, LiquidityNet: big.NewInt(5)}},
	}, nil
}

func TestCachedCollapsesAndCopies(t *testing.T) {
	upstream := &countingSource{delay: 20 * time.Millisecond}
	cached, err := NewCached(upstream, 4, nil)
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]model.PoolSnapshot, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := cached.Snapshot(context.Background(), "USDC/WETH-3000", 7)
			if err != nil {
				t.Errorf("Snapshot: %v", err)
				return
			}
			results[i] = snap
		}(i)
	}
	wg.Wait()
	if calls := upstream.calls.Load(); calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", calls)
	}

	results[0].Liquidity.SetInt64(0)
	results[0].Ticks[0].LiquidityNet.SetInt64(0)
	again, err := cached.Snapshot(context.Background(), "usdc/weth-3000", 7)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if again.Liquidity.Int64() != 42 || again.Ticks[0].LiquidityNet.Int64() != 5 {
		t.Fatalf("cached snapshot aliased caller state: %+v", again)
	}
	if calls := upstream.calls.Load(); calls != 1 {
		t.Fatalf("upstream calls = %d after hit, want 1", calls)
	}

	if _, err := cached.Snapshot(context.Background(), "USDC/WETH-3000", 8); err != nil {
		t.Fatalf("Snapshot other block: %v", err)
	}
	if cached.Len() != 2 {
		t.Fatalf("cache len = %d, want 2", cached.Len())
	}

	if _, err := cached.Snapshot(context.Background(), "missing", 1); !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}
	if _, err := cached.Snapshot(context.Background(), "missing", 1); !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("errors must not be cached, got %v", err)
	}
	if calls := upstream.calls.Load(); calls != 4 {
		t.Fatalf("upstream calls = %d, want 4", calls)
	}
}

func TestForkedDoesNotRetryReverts(t *testing.T) {
	chain, clock, _ := newFixture(t)
	reg, err := registry.NewStatic([]model.PoolInfo{{
		ChainID:    1,
		Symbol:     "DEAD/WETH-3000",
		Address:    "0x000000000000000000000000000000000000dEaD",
		StartBlock: 1000,
	}})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	cfg := testConfig()
	cfg.MaxRetries = 3

	_, err = NewForked(cfg, chain, clock, reg, nil).Snapshot(context.Background(), "DEAD/WETH-3000", 2000)
	if !errors.Is(err, dex.ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
	if errors.Is(err, ErrRPCUnavailable) {
		t.Fatalf("revert reported as unavailable ledger: %v", err)
	}
	if calls := chain.Calls(); calls != 1 {
		t.Fatalf("calls = %d, want 1 attempt for a revert", calls)
	}
}

func TestWithRetryStopsOnPermanent(t *testing.T) {
	boom := errors.New("bad return data")
	attempts := 0
	err := withRetry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		attempts++
		return permanent(boom)
	}, nil)
	if err != boom {
		t.Fatalf("err = %v, want unwrapped %v", err, boom)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

type gatedSource struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (s *gatedSource) Snapshot(ctx context.Context, poolID string, block uint64) (model.PoolSnapshot, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	<-s.release
	if err := ctx.Err(); err != nil {
		return model.PoolSnapshot{}, err
	}
	return model.PoolSnapshot{PoolID: poolID, Block: block, SqrtPriceX96: big.NewInt(1), Liquidity: big.NewInt(1)}, nil
}

func TestCachedLeaderCancelDoesNotFailFollowers(t *testing.T) {
	upstream := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	cached, err := NewCached(upstream, 4, nil)
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cached.Snapshot(leaderCtx, "USDC/WETH-3000", 9)
		leaderErr <- err
	}()
	<-upstream.started

	followerErr := make(chan error, 1)
	go func() {
		_, err := cached.Snapshot(context.Background(), "USDC/WETH-3000", 9)
		followerErr <- err
	}()

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader: expected context.Canceled, got %v", err)
	}
	close(upstream.release)
	if err := <-followerErr; err != nil {
		t.Fatalf("follower failed after leader cancel: %v", err)
	}
	if calls := upstream.calls.Load(); calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", calls)
	}
	if cached.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", cached.Len())
	}
}
