package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"slippageScope/internal/clmm"
	"slippageScope/internal/executor"
	"slippageScope/internal/model"
	"slippageScope/internal/source"
)

type staticSource struct {
	snapshot model.PoolSnapshot
	err      error
	blocks   []uint64
}

func (s *staticSource) Snapshot(_ context.Context, poolID string, block uint64) (model.PoolSnapshot, error) {
	s.blocks = append(s.blocks, block)
	if s.err != nil {
		return model.PoolSnapshot{}, s.err
	}
	out := s.snapshot.Clone()
	out.Block = block
	return out, nil
}

type fixedBlocks struct {
	def uint64
	at  uint64
}

func (b fixedBlocks) DefaultBlock(context.Context, string) (uint64, error) {
	return b.def, nil
}

func (b fixedBlocks) BlockForTimestamp(context.Context, time.Time) (uint64, error) {
	if b.at == 0 {
		return 0, source.ErrOutOfRange
	}
	return b.at, nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newSource() *staticSource {
	return &staticSource{snapshot: model.PoolSnapshot{
		PoolID:      "T0/T1-3000",
		Token0:      model.Token{Symbol: "T0", Decimals: 3},
		Token1:      model.Token{Symbol: "T1", Decimals: 3},
		FeeTier:     3000,
		TickSpacing: 60,
		CurrentTick: 0,
		Liquidity:   big.NewInt(1_000_000),
	}}
}

func TestRunTradeOnly(t *testing.T) {
	src := newSource()
	runner := NewRunner(src, nil, 0, nil)

	report, err := runner.Run(context.Background(), Request{
		PoolID: "T0/T1-3000",
		Block:  10,
		Trade:  TradeRequest{Token: "t0", Amount: d("1")},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" || report.Block != 10 || report.PoolID != "T0/T1-3000" {
		t.Fatalf("report header = %+v", report)
	}
	if report.Initial.Tick != 0 || report.Initial.Fee != 3000 || report.Initial.TickSpacing != 60 {
		t.Fatalf("initial state = %+v", report.Initial)
	}
	if !report.Initial.Price.Equal(decimal.New(1, 0)) {
		t.Fatalf("initial price = %s, want 1", report.Initial.Price)
	}
	if report.PostLiquidity != nil {
		t.Fatalf("unexpected post-liquidity state")
	}
	if report.PostTrade == nil || report.PostTrade.Tick >= 0 {
		t.Fatalf("selling token0 should move the tick down: %+v", report.PostTrade)
	}
	if len(report.Actions) != 1 || report.Actions[0].Kind != model.ActionTrade || report.Actions[0].Agent != TraderAgent {
		t.Fatalf("actions = %+v", report.Actions)
	}

	got := report.Slippage
	if got == nil {
		t.Fatalf("missing slippage")
	}
	if !got.QuotedPrice.Equal(decimal.New(1, 0)) {
		t.Fatalf("quoted = %s", got.QuotedPrice)
	}
	if got.SlippageFraction.LessThan(d("0.003")) || !got.PriceImpactFraction.IsPositive() {
		t.Fatalf("slippage = %+v", got)
	}
	if !got.EffectivePrice.Equal(report.Actions[0].AmountOut) {
		t.Fatalf("effective %s != received %s for one unit sold", got.EffectivePrice, report.Actions[0].AmountOut)
	}
}

func TestRunLiquidityDeepensPool(t *testing.T) {
	trade := TradeRequest{Token: "T1", Amount: d("2")}

	bare, err := NewRunner(newSource(), nil, 0, nil).Run(context.Background(), Request{PoolID: "T0/T1-3000", Block: 10, Trade: trade})
	if err != nil {
		t.Fatalf("Run without liquidity: %v", err)
	}

	deep, err := NewRunner(newSource(), nil, 0, nil).Run(context.Background(), Request{
		PoolID:    "T0/T1-3000",
		Block:     10,
		Liquidity: &LiquidityRequest{Amount0: d("100"), Amount1: d("100")},
		Trade:     trade,
	})
	if err != nil {
		t.Fatalf("Run with liquidity: %v", err)
	}
	if deep.PostLiquidity == nil || deep.PostLiquidity.Liquidity.Cmp(deep.Initial.Liquidity) <= 0 {
		t.Fatalf("liquidity did not grow: %+v", deep.PostLiquidity)
	}
	if !deep.PostLiquidity.Price.Equal(deep.Initial.Price) {
		t.Fatalf("adding liquidity moved the price")
	}
	if len(deep.Actions) != 2 || deep.Actions[0].Index != 0 || deep.Actions[1].Index != 1 {
		t.Fatalf("action indexes = %+v", deep.Actions)
	}
	if deep.Actions[0].Agent != LPAgent || deep.Actions[1].Agent != TraderAgent {
		t.Fatalf("agents = %s, %s", deep.Actions[0].Agent, deep.Actions[1].Agent)
	}
	if deep.PostTrade.SqrtPriceX96.Cmp(deep.Initial.SqrtPriceX96) <= 0 {
		t.Fatalf("selling token1 should raise the price")
	}
	if !deep.Slippage.SlippageFraction.LessThan(bare.Slippage.SlippageFraction) {
		t.Fatalf("deeper pool slippage %s, bare %s", deep.Slippage.SlippageFraction, bare.Slippage.SlippageFraction)
	}
}

func TestRunResolvesBlock(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want uint64
	}{
		{name: "explicit", req: Request{Block: 42}, want: 42},
		{name: "default", req: Request{}, want: 3000},
		{name: "timestamp", req: Request{At: time.Unix(1_600_000_000, 0)}, want: 1234},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := newSource()
			runner := NewRunner(src, fixedBlocks{def: 3000, at: 1234}, 0, nil)
			tc.req.PoolID = "T0/T1-3000"
			tc.req.Trade = TradeRequest{Token: "T0", Amount: d("1")}
			report, err := runner.Run(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if report.Block != tc.want || len(src.blocks) != 1 || src.blocks[0] != tc.want {
				t.Fatalf("block = %d, source saw %v, want %d", report.Block, src.blocks, tc.want)
			}
		})
	}

	if _, err := NewRunner(newSource(), nil, 0, nil).Run(context.Background(), Request{PoolID: "T0/T1-3000"}); err == nil {
		t.Fatalf("expected error without block or resolver")
	}
	_, err := NewRunner(newSource(), fixedBlocks{}, 0, nil).Run(context.Background(), Request{PoolID: "T0/T1-3000", At: time.Unix(1, 0)})
	if !errors.Is(err, source.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestRunRejections(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{
			name: "unknown token",
			req:  Request{Trade: TradeRequest{Token: "DAI", Amount: d("1")}},
			want: clmm.ErrUnknownToken,
		},
		{
			name: "range outside window",
			req: Request{
				Liquidity: &LiquidityRequest{Amount0: d("1"), Amount1: d("1"), Range: &model.TickRange{Lower: -1200, Upper: 60}},
				Trade:     TradeRequest{Token: "T0", Amount: d("1")},
			},
			want: clmm.ErrInvalidTickRange,
		},
		{
			name: "single sided inside range",
			req: Request{
				Liquidity: &LiquidityRequest{Amount0: d("1"), Range: &model.TickRange{Lower: -60, Upper: 60}},
				Trade:     TradeRequest{Token: "T0", Amount: d("1")},
			},
			want: clmm.ErrSingleSidedNotAllowed,
		},
		{
			name: "trade beyond tracked window",
			req:  Request{Trade: TradeRequest{Token: "T0", Amount: d("100")}},
			want: clmm.ErrInsufficientLiquidity,
		},
		{
			name: "zero trade",
			req:  Request{Trade: TradeRequest{Token: "T0"}},
			want: executor.ErrInvalidAction,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.PoolID = "T0/T1-3000"
			tc.req.Block = 10
			report, err := NewRunner(newSource(), nil, 0, nil).Run(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if report.Slippage != nil || report.PostTrade != nil {
				t.Fatalf("failed run reported results: %+v", report)
			}
			if report.Initial.Liquidity == nil {
				t.Fatalf("partial report lost the initial state")
			}
		})
	}
}

func TestRunErrorIndexSpansPhases(t *testing.T) {
	_, err := NewRunner(newSource(), nil, 0, nil).Run(context.Background(), Request{
		PoolID:    "T0/T1-3000",
		Block:     10,
		Liquidity: &LiquidityRequest{Amount0: d("1"), Amount1: d("1")},
		Trade:     TradeRequest{Token: "T0", Amount: d("1000")},
	})
	var actionErr *executor.ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("expected ActionError, got %v", err)
	}
	if actionErr.Index != 1 || actionErr.Kind != model.ActionTrade {
		t.Fatalf("action error = %+v", actionErr)
	}
}

func TestRunSourceFailure(t *testing.T) {
	src := newSource()
	src.err = fmt.Errorf("rpc down: %w", source.ErrRPCUnavailable)
	report, err := NewRunner(src, nil, 0, nil).Run(context.Background(), Request{PoolID: "T0/T1-3000", Block: 10})
	if !errors.Is(err, source.ErrRPCUnavailable) {
		t.Fatalf("expected ErrRPCUnavailable, got %v", err)
	}
	if report.Block != 10 || report.RunID == "" {
		t.Fatalf("report = %+v", report)
	}
}

func TestRunUnknownPolicy(t *testing.T) {
	_, err := NewRunner(newSource(), nil, 0, nil).Run(context.Background(), Request{PoolID: "T0/T1-3000", Block: 10, Policy: "twap"})
	if err == nil {
		t.Fatalf("expected unknown policy error")
	}
}

func TestSnapshotOnly(t *testing.T) {
	report, err := NewRunner(newSource(), fixedBlocks{def: 77}, 0, nil).Snapshot(context.Background(), Request{PoolID: "T0/T1-3000"})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if report.Block != 77 || report.Initial.TickSpacing != 60 || len(report.Actions) != 0 {
		t.Fatalf("report = %+v", report)
	}
}
