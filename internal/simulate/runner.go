package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"slippageScope/internal/clmm"
	"slippageScope/internal/executor"
	"slippageScope/internal/model"
	"slippageScope/internal/portfolio"
	"slippageScope/internal/slippage"
	"slippageScope/internal/source"
)

const (
	LPAgent     = "LPAgent"
	TraderAgent = "TraderAgent"
)

// LiquidityRequest adds liquidity before the trade. A nil Range means the active range.
type LiquidityRequest struct {
	Amount0 decimal.Decimal
	Amount1 decimal.Decimal
	Range   *model.TickRange
}

// TradeRequest sells Amount of Token (symbol or address).
type TradeRequest struct {
	Token  string
	Amount decimal.Decimal
}

// Request describes one simulation. Block wins over At; when both are empty the
// block halfway through the pool's life is used.
type Request struct {
	PoolID    string
	Block     uint64
	At        time.Time
	Liquidity *LiquidityRequest
	Trade     TradeRequest
	Policy    string
}

// BlockResolver picks a block when the request does not name one.
type BlockResolver interface {
	DefaultBlock(ctx context.Context, poolID string) (uint64, error)
	BlockForTimestamp(ctx context.Context, ts time.Time) (uint64, error)
}

// Runner executes simulations against a snapshot source.
type Runner struct {
	source     source.Source
	blocks     BlockResolver
	tickWindow int32
	logger     *zap.Logger
}

// NewRunner builds a Runner. blocks may be nil when every request names a block.
func NewRunner(src source.Source, blocks BlockResolver, tickWindow int32, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tickWindow <= 0 {
		tickWindow = model.DefaultTickWindow
	}
	return &Runner{source: src, blocks: blocks, tickWindow: tickWindow, logger: logger}
}

// Run seeds a pool at the requested block, applies the optional liquidity and the trade,
// and reports pool states and slippage. On failure the report holds everything that
// completed before the error.
func (r *Runner) Run(ctx context.Context, req Request) (model.RunReport, error) {
	report := model.RunReport{RunID: uuid.New().String(), PoolID: req.PoolID}
	if r.source == nil {
		return report, fmt.Errorf("snapshot source is nil")
	}
	policy, ok := executor.PolicyByName(req.Policy)
	if !ok {
		return report, fmt.Errorf("unknown market impact policy %q", req.Policy)
	}

	block, err := r.resolveBlock(ctx, req)
	if err != nil {
		return report, err
	}
	report.Block = block
	log := r.logger.With(zap.String("run_id", report.RunID), zap.String("pool", req.PoolID), zap.Uint64("block", block))
	log.Info("simulation started")

	snapshot, err := r.source.Snapshot(ctx, req.PoolID, block)
	if err != nil {
		return report, fmt.Errorf("load snapshot: %w", err)
	}
	pool := clmm.NewPool()
	if err := pool.Initialize(snapshot); err != nil {
		return report, fmt.Errorf("initialize pool: %w", err)
	}
	report.PoolID = snapshot.PoolID
	report.Token0 = snapshot.Token0
	report.Token1 = snapshot.Token1
	if report.Initial, err = observe(pool); err != nil {
		return report, err
	}

	tokenIn, sellsToken0, err := pool.Token(req.Trade.Token)
	if err != nil {
		return report, fmt.Errorf("trade token: %w", err)
	}
	tokenOut := snapshot.Token1
	if !sellsToken0 {
		tokenOut = snapshot.Token0
	}

	book := portfolio.NewBook()
	exec := executor.New(pool, book, policy, log)

	if req.Liquidity != nil {
		active, _ := pool.ActiveTickRange()
		rng := active
		if req.Liquidity.Range != nil {
			rng = *req.Liquidity.Range
		}
		if err := r.checkWindow(active, snapshot.TickSpacing, rng); err != nil {
			return report, err
		}
		book.Put(portfolio.NewWithBalances(LPAgent, map[string]decimal.Decimal{
			snapshot.Token0.Key(): req.Liquidity.Amount0,
			snapshot.Token1.Key(): req.Liquidity.Amount1,
		}))
		quote := model.LiquidityQuote{
			Agent:   LPAgent,
			PoolID:  snapshot.PoolID,
			Amount0: req.Liquidity.Amount0,
			Amount1: req.Liquidity.Amount1,
			Range:   rng,
		}
		if err := r.execute(exec, &report, []model.Action{quote}); err != nil {
			return report, err
		}
		post, err := observe(pool)
		if err != nil {
			return report, err
		}
		report.PostLiquidity = &post
	}

	quoted, err := pool.Price(tokenIn.Key(), tokenOut.Key())
	if err != nil {
		return report, err
	}
	fee, err := pool.FeeFraction()
	if err != nil {
		return report, err
	}

	trader := portfolio.NewWithBalances(TraderAgent, map[string]decimal.Decimal{tokenIn.Key(): req.Trade.Amount})
	book.Put(trader)
	before := trader.Snapshot()

	trade := model.Trade{Agent: TraderAgent, PoolID: snapshot.PoolID}
	if sellsToken0 {
		trade.Amount0In = req.Trade.Amount
	} else {
		trade.Amount1In = req.Trade.Amount
	}
	if err := r.execute(exec, &report, []model.Action{trade}); err != nil {
		return report, err
	}
	post, err := observe(pool)
	if err != nil {
		return report, err
	}
	report.PostTrade = &post

	delta := trader.Diff(before)
	sold := delta[portfolio.Key(tokenIn.Key())].Neg()
	received := delta[portfolio.Key(tokenOut.Key())]
	result, err := slippage.Compute(quoted, fee, sold, received)
	if err != nil {
		return report, fmt.Errorf("compute slippage: %w", err)
	}
	report.Slippage = &result

	log.Info("simulation finished",
		zap.String("sold", sold.String()+" "+tokenIn.Key()),
		zap.String("received", received.String()+" "+tokenOut.Key()),
		zap.String("slippage", slippage.Percent(result.SlippageFraction, 4)),
		zap.Int32("tick_after", post.Tick),
	)
	return report, nil
}

// Snapshot loads the pool state without applying any action.
func (r *Runner) Snapshot(ctx context.Context, req Request) (model.RunReport, error) {
	report := model.RunReport{RunID: uuid.New().String(), PoolID: req.PoolID}
	block, err := r.resolveBlock(ctx, req)
	if err != nil {
		return report, err
	}
	report.Block = block
	snapshot, err := r.source.Snapshot(ctx, req.PoolID, block)
	if err != nil {
		return report, fmt.Errorf("load snapshot: %w", err)
	}
	pool := clmm.NewPool()
	if err := pool.Initialize(snapshot); err != nil {
		return report, fmt.Errorf("initialize pool: %w", err)
	}
	report.PoolID = snapshot.PoolID
	report.Token0 = snapshot.Token0
	report.Token1 = snapshot.Token1
	report.Initial, err = observe(pool)
	return report, err
}

func (r *Runner) resolveBlock(ctx context.Context, req Request) (uint64, error) {
	if req.Block > 0 {
		return req.Block, nil
	}
	if r.blocks == nil {
		return 0, fmt.Errorf("block is required")
	}
	if !req.At.IsZero() {
		block, err := r.blocks.BlockForTimestamp(ctx, req.At)
		if err != nil {
			return 0, fmt.Errorf("resolve block at %s: %w", req.At.UTC().Format(time.RFC3339), err)
		}
		return block, nil
	}
	block, err := r.blocks.DefaultBlock(ctx, req.PoolID)
	if err != nil {
		return 0, fmt.Errorf("resolve default block: %w", err)
	}
	return block, nil
}

// checkWindow keeps provided liquidity within the tracked window around the active range.
func (r *Runner) checkWindow(active model.TickRange, spacing int32, rng model.TickRange) error {
	lower := active.Lower - r.tickWindow*spacing
	upper := active.Lower + r.tickWindow*spacing
	if rng.Lower < lower || rng.Upper > upper {
		return fmt.Errorf("%w: [%d, %d) outside [%d, %d]", clmm.ErrInvalidTickRange, rng.Lower, rng.Upper, lower, upper)
	}
	return nil
}

func (r *Runner) execute(exec *executor.Executor, report *model.RunReport, actions []model.Action) error {
	offset := len(report.Actions)
	result, err := exec.Execute(actions)
	for _, outcome := range result.Outcomes {
		outcome.Index += offset
		report.Actions = append(report.Actions, outcome)
	}
	if err != nil {
		var actionErr *executor.ActionError
		if errors.As(err, &actionErr) {
			actionErr.Index += offset
		}
		return err
	}
	return nil
}

// observe reads the pool fields shown to the analyst. Price is token1 in token0 units.
func observe(pool *clmm.Pool) (model.PoolState, error) {
	token0, token1, err := pool.Tokens()
	if err != nil {
		return model.PoolState{}, err
	}
	tick, _ := pool.CurrentTick()
	liquidity, _ := pool.Liquidity()
	sqrt, _ := pool.SqrtPriceX96()
	fee, _ := pool.FeeTier()
	spacing, _ := pool.TickSpacing()
	price, err := pool.Price(token1.Key(), token0.Key())
	if err != nil {
		return model.PoolState{}, err
	}
	return model.PoolState{
		Tick:         tick,
		Liquidity:    liquidity,
		SqrtPriceX96: sqrt,
		Price:        price,
		Fee:          fee,
		TickSpacing:  spacing,
	}, nil
}
