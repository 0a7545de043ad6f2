package executor

import (
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"slippageScope/internal/clmm"
	"slippageScope/internal/model"
	"slippageScope/internal/portfolio"
)

// Report collects the outcome of every action that was applied.
type Report struct {
	Policy   string
	Outcomes []model.ActionOutcome
}

// Executor applies actions to one pool and the agents' portfolios, strictly in order.
type Executor struct {
	pool   *clmm.Pool
	book   *portfolio.Book
	policy Policy
	logger *zap.Logger
}

// New builds an Executor. A nil policy means Replay.
func New(pool *clmm.Pool, book *portfolio.Book, policy Policy, logger *zap.Logger) *Executor {
	if book == nil {
		book = portfolio.NewBook()
	}
	if policy == nil {
		policy = Replay{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{pool: pool, book: book, policy: policy, logger: logger}
}

// Execute applies actions in list order. The first failure stops the run and is returned
// as an *ActionError together with the outcomes of the actions that already completed.
func (e *Executor) Execute(actions []model.Action) (Report, error) {
	report := Report{Policy: e.policy.Name(), Outcomes: make([]model.ActionOutcome, 0, len(actions))}
	if e.pool == nil || !e.pool.Ready() {
		return report, &ActionError{Index: 0, Kind: firstKind(actions), Err: clmm.ErrPoolNotInitialized}
	}

	for i, action := range actions {
		var (
			outcome model.ActionOutcome
			err     error
		)
		switch a := action.(type) {
		case model.LiquidityQuote:
			outcome, err = e.applyLiquidity(a)
		case *model.LiquidityQuote:
			outcome, err = e.applyLiquidity(*a)
		case model.Trade:
			outcome, err = e.applyTrade(a)
		case *model.Trade:
			outcome, err = e.applyTrade(*a)
		default:
			err = fmt.Errorf("%w: unsupported action %T", ErrInvalidAction, action)
		}
		if err != nil {
			kind := model.ActionKind("")
			if action != nil {
				kind = action.Kind()
			}
			e.logger.Debug("action failed", zap.Int("index", i), zap.String("kind", string(kind)), zap.Error(err))
			return report, &ActionError{Index: i, Kind: kind, Err: err}
		}
		outcome.Index = i
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}

func (e *Executor) applyLiquidity(q model.LiquidityQuote) (model.ActionOutcome, error) {
	if err := e.checkPool(q); err != nil {
		return model.ActionOutcome{}, err
	}
	if q.Amount0.IsNegative() || q.Amount1.IsNegative() {
		return model.ActionOutcome{}, fmt.Errorf("%w: liquidity amounts must not be negative", ErrInvalidAction)
	}
	token0, token1, err := e.pool.Tokens()
	if err != nil {
		return model.ActionOutcome{}, err
	}

	sqrtBefore, err := e.pool.SqrtPriceX96()
	if err != nil {
		return model.ActionOutcome{}, err
	}
	supplied0, supplied1 := token0.ToRaw(q.Amount0), token1.ToRaw(q.Amount1)
	position, used0, used1, err := e.policy.AddLiquidity(e.pool, q.Agent, q.Range, supplied0, supplied1)
	if err != nil {
		return model.ActionOutcome{}, fmt.Errorf("add liquidity: %w", err)
	}
	if err := checkLiquidity(sqrtBefore, q.Range, position, supplied0, supplied1, used0, used1); err != nil {
		return model.ActionOutcome{}, err
	}

	spent0 := token0.FromRaw(used0)
	spent1 := token1.FromRaw(used1)
	wallet := e.book.Get(q.Agent)
	wallet.ApplyDelta(token0.Key(), spent0.Neg())
	wallet.ApplyDelta(token1.Key(), spent1.Neg())

	e.logger.Debug("liquidity added",
		zap.String("agent", q.Agent),
		zap.Int32("lower", q.Range.Lower),
		zap.Int32("upper", q.Range.Upper),
		zap.String("liquidity", position.Liquidity.String()),
		zap.String("used0", spent0.String()),
		zap.String("used1", spent1.String()),
	)

	return model.ActionOutcome{
		Kind:      model.ActionLiquidityQuote,
		Agent:     q.Agent,
		Used0:     spent0,
		Used1:     spent1,
		Liquidity: position.Liquidity,
	}, nil
}

func (e *Executor) applyTrade(t model.Trade) (model.ActionOutcome, error) {
	if err := e.checkPool(t); err != nil {
		return model.ActionOutcome{}, err
	}
	if err := t.Validate(); err != nil {
		return model.ActionOutcome{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	token0, token1, err := e.pool.Tokens()
	if err != nil {
		return model.ActionOutcome{}, err
	}

	tokenIn, tokenOut, amount := token0, token1, t.Amount0In
	if !t.ZeroForOne() {
		tokenIn, tokenOut, amount = token1, token0, t.Amount1In
	}
	raw := tokenIn.ToRaw(amount)
	if raw.Sign() <= 0 {
		return model.ActionOutcome{}, fmt.Errorf("%w: %s %s is below one base unit", ErrInvalidAction, amount, tokenIn.Key())
	}

	sqrtBefore, err := e.pool.SqrtPriceX96()
	if err != nil {
		return model.ActionOutcome{}, err
	}
	swap, err := e.policy.Swap(e.pool, raw, tokenIn.Key())
	if err != nil {
		return model.ActionOutcome{}, fmt.Errorf("swap: %w", err)
	}
	if err := checkSwap(sqrtBefore, raw, t.ZeroForOne(), swap); err != nil {
		return model.ActionOutcome{}, err
	}

	amountIn := tokenIn.FromRaw(raw)
	amountOut := tokenOut.FromRaw(swap.AmountOut)
	wallet := e.book.Get(t.Agent)
	wallet.ApplyDelta(tokenIn.Key(), amountIn.Neg())
	wallet.ApplyDelta(tokenOut.Key(), amountOut)

	e.logger.Debug("trade executed",
		zap.String("agent", t.Agent),
		zap.String("token_in", tokenIn.Key()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", amountOut.String()),
		zap.Int32("tick_after", swap.TickAfter),
		zap.Int("ticks_crossed", swap.TicksCrossed),
	)

	return model.ActionOutcome{
		Kind:         model.ActionTrade,
		Agent:        t.Agent,
		TokenIn:      tokenIn.Key(),
		TokenOut:     tokenOut.Key(),
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		TicksCrossed: swap.TicksCrossed,
	}, nil
}

func (e *Executor) checkPool(action model.Action) error {
	if strings.TrimSpace(action.AgentName()) == "" {
		return fmt.Errorf("%w: agent is required", ErrInvalidAction)
	}
	id := action.Pool()
	if id != "" && !strings.EqualFold(id, e.pool.ID()) {
		return fmt.Errorf("%w: action targets pool %s, executor holds %s", ErrInvalidAction, id, e.pool.ID())
	}
	return nil
}

// checkSwap holds a policy's swap result against the curve before any wallet moves.
// Fee plus consumed input must equal the trader's input, and the output may never
// beat the consumed input at the pre-trade price.
func checkSwap(sqrtBefore, amountIn *big.Int, zeroForOne bool, swap clmm.SwapResult) error {
	if swap.AmountIn == nil || swap.FeeAmount == nil || swap.AmountConsumed == nil || swap.AmountOut == nil {
		return fmt.Errorf("%w: incomplete swap result", ErrConservation)
	}
	if swap.AmountIn.Cmp(amountIn) != 0 {
		return fmt.Errorf("%w: pool took %s, trader sent %s", ErrConservation, swap.AmountIn, amountIn)
	}
	if swap.FeeAmount.Sign() < 0 || swap.AmountConsumed.Sign() < 0 || swap.AmountOut.Sign() < 0 {
		return fmt.Errorf("%w: negative swap amount", ErrConservation)
	}
	if total := new(big.Int).Add(swap.FeeAmount, swap.AmountConsumed); total.Cmp(amountIn) != 0 {
		return fmt.Errorf("%w: fee %s plus consumed %s is not input %s", ErrConservation, swap.FeeAmount, swap.AmountConsumed, amountIn)
	}

	// Prices only move against the trader, so out <= consumed * price0 in raw units.
	priceX192 := new(big.Int).Mul(sqrtBefore, sqrtBefore)
	var lhs, rhs *big.Int
	if zeroForOne {
		lhs = new(big.Int).Mul(swap.AmountOut, clmm.Q192)
		rhs = new(big.Int).Mul(swap.AmountConsumed, priceX192)
	} else {
		lhs = new(big.Int).Mul(swap.AmountOut, priceX192)
		rhs = new(big.Int).Mul(swap.AmountConsumed, clmm.Q192)
	}
	if lhs.Cmp(rhs) > 0 {
		return fmt.Errorf("%w: output %s exceeds %s input at the pre-trade price", ErrConservation, swap.AmountOut, swap.AmountConsumed)
	}
	return nil
}

// checkLiquidity holds a policy's deposit against the amounts its liquidity needs
// at the pre-deposit price, clamped to what the agent supplied.
func checkLiquidity(sqrtBefore *big.Int, r model.TickRange, position model.LiquidityPosition, supplied0, supplied1, used0, used1 *big.Int) error {
	if position.Liquidity == nil || position.Liquidity.Sign() <= 0 || used0 == nil || used1 == nil {
		return fmt.Errorf("%w: incomplete liquidity result", ErrConservation)
	}
	sqrtLower, err := clmm.SqrtRatioAtTick(r.Lower)
	if err != nil {
		return err
	}
	sqrtUpper, err := clmm.SqrtRatioAtTick(r.Upper)
	if err != nil {
		return err
	}
	need0, need1 := clmm.AmountsForLiquidity(sqrtBefore, sqrtLower, sqrtUpper, position.Liquidity)
	for _, side := range []struct {
		name                   string
		used, supplied, needed *big.Int
	}{
		{"token0", used0, supplied0, need0},
		{"token1", used1, supplied1, need1},
	} {
		if side.used.Sign() < 0 || side.used.Cmp(side.supplied) > 0 {
			return fmt.Errorf("%w: %s used %s of %s supplied", ErrConservation, side.name, side.used, side.supplied)
		}
		want := side.needed
		if want.Cmp(side.supplied) > 0 {
			want = side.supplied
		}
		if side.used.Cmp(want) != 0 {
			return fmt.Errorf("%w: %s used %s, liquidity %s needs %s", ErrConservation, side.name, side.used, position.Liquidity, want)
		}
	}
	return nil
}

func firstKind(actions []model.Action) model.ActionKind {
	if len(actions) == 0 || actions[0] == nil {
		return ""
	}
	return actions[0].Kind()
}
