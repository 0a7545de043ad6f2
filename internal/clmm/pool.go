package clmm

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"slippageScope/internal/model"
)

// FeeDenominator is the fee tier unit: 3000 means 0.3%.
const FeeDenominator = 1_000_000

// PricePrecision is the number of decimal places kept by Price.
const PricePrecision int32 = 30

// SwapResult describes a completed swap.
type SwapResult struct {
	AmountIn  *big.Int
	FeeAmount *big.Int
	// AmountConsumed is the post-fee input that moved the price.
	AmountConsumed *big.Int
	AmountOut      *big.Int
	TickAfter      int32
	LiquidityAfter *big.Int
	SqrtPriceAfter *big.Int
	TicksCrossed   int
}

// Pool is an in-memory concentrated-liquidity pool seeded from a snapshot.
// It is not safe for concurrent use; a simulation run owns its pool.
type Pool struct {
	ready bool

	id          string
	block       uint64
	token0      model.Token
	token1      model.Token
	fee         uint32
	tickSpacing int32

	tick         int32
	sqrtPriceX96 *big.Int
	liquidity    *big.Int
	ticks        map[int32]*big.Int
	minTick      int32
	maxTick      int32

	positions []model.LiquidityPosition
}

// NewPool returns an uninitialized pool.
func NewPool() *Pool {
	return &Pool{}
}

// Initialize seeds the pool. Repeating it with the same pool and block is a no-op.
func (p *Pool) Initialize(snapshot model.PoolSnapshot) error {
	if p.ready {
		if snapshot.PoolID == p.id && snapshot.Block == p.block {
			return nil
		}
		return ErrAlreadyInitialized
	}

	if snapshot.TickSpacing <= 0 {
		return fmt.Errorf("%w: tick spacing %d", ErrInvalidSnapshot, snapshot.TickSpacing)
	}
	if snapshot.FeeTier >= FeeDenominator {
		return fmt.Errorf("%w: fee tier %d", ErrInvalidSnapshot, snapshot.FeeTier)
	}
	if snapshot.CurrentTick < MinTick || snapshot.CurrentTick > MaxTick {
		return fmt.Errorf("%w: current tick %d", ErrInvalidSnapshot, snapshot.CurrentTick)
	}
	if snapshot.Liquidity != nil && snapshot.Liquidity.Sign() < 0 {
		return fmt.Errorf("%w: negative liquidity", ErrInvalidSnapshot)
	}

	sqrtPrice := snapshot.SqrtPriceX96
	if sqrtPrice == nil || sqrtPrice.Sign() == 0 {
		var err error
		sqrtPrice, err = SqrtRatioAtTick(snapshot.CurrentTick)
		if err != nil {
			return err
		}
	} else if sqrtPrice.Cmp(MinSqrtRatio) < 0 || sqrtPrice.Cmp(MaxSqrtRatio) >= 0 {
		return fmt.Errorf("%w: sqrt price %s", ErrInvalidSnapshot, sqrtPrice)
	}

	liquidity := new(big.Int)
	if snapshot.Liquidity != nil {
		liquidity.Set(snapshot.Liquidity)
	}

	window := snapshot.TickWindow
	if window <= 0 {
		window = model.DefaultTickWindow
	}
	active := snapshot.ActiveRange()
	minTick := active.Lower - window*snapshot.TickSpacing
	maxTick := active.Upper + window*snapshot.TickSpacing

	ticks := make(map[int32]*big.Int, len(snapshot.Ticks))
	for _, t := range snapshot.Ticks {
		if t.LiquidityNet == nil || t.LiquidityNet.Sign() == 0 {
			continue
		}
		if t.Tick%snapshot.TickSpacing != 0 {
			return fmt.Errorf("%w: tick %d not aligned to spacing %d", ErrInvalidSnapshot, t.Tick, snapshot.TickSpacing)
		}
		net, ok := ticks[t.Tick]
		if !ok {
			net = new(big.Int)
			ticks[t.Tick] = net
		}
		net.Add(net, t.LiquidityNet)
		if t.Tick < minTick {
			minTick = t.Tick
		}
		if t.Tick > maxTick {
			maxTick = t.Tick
		}
	}

	p.id = snapshot.PoolID
	p.block = snapshot.Block
	p.token0 = snapshot.Token0
	p.token1 = snapshot.Token1
	p.fee = snapshot.FeeTier
	p.tickSpacing = snapshot.TickSpacing
	p.tick = snapshot.CurrentTick
	p.sqrtPriceX96 = new(big.Int).Set(sqrtPrice)
	p.liquidity = liquidity
	p.ticks = ticks
	p.minTick = clampTick(minTick, snapshot.TickSpacing)
	p.maxTick = clampTick(maxTick, snapshot.TickSpacing)
	p.positions = nil
	p.ready = true
	return nil
}

// Ready reports whether Initialize has succeeded.
func (p *Pool) Ready() bool {
	return p.ready
}

// ID returns the pool identifier of the seeding snapshot.
func (p *Pool) ID() string {
	return p.id
}

// Tokens returns token0 and token1.
func (p *Pool) Tokens() (model.Token, model.Token, error) {
	if !p.ready {
		return model.Token{}, model.Token{}, ErrPoolNotInitialized
	}
	return p.token0, p.token1, nil
}

// Token resolves a symbol or address to a pool token and reports whether it is token0.
func (p *Pool) Token(id string) (model.Token, bool, error) {
	if !p.ready {
		return model.Token{}, false, ErrPoolNotInitialized
	}
	switch {
	case p.token0.Matches(id):
		return p.token0, true, nil
	case p.token1.Matches(id):
		return p.token1, false, nil
	default:
		return model.Token{}, false, fmt.Errorf("%w: %s", ErrUnknownToken, id)
	}
}

// FeeTier returns the fee in hundredths of a basis point.
func (p *Pool) FeeTier() (uint32, error) {
	if !p.ready {
		return 0, ErrPoolNotInitialized
	}
	return p.fee, nil
}

// FeeFraction returns the fee tier as a fraction of one.
func (p *Pool) FeeFraction() (decimal.Decimal, error) {
	fee, err := p.FeeTier()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(int64(fee), 0).Div(decimal.New(FeeDenominator, 0)), nil
}

// TickSpacing returns the pool tick spacing.
func (p *Pool) TickSpacing() (int32, error) {
	if !p.ready {
		return 0, ErrPoolNotInitialized
	}
	return p.tickSpacing, nil
}

// CurrentTick returns the active tick.
func (p *Pool) CurrentTick() (int32, error) {
	if !p.ready {
		return 0, ErrPoolNotInitialized
	}
	return p.tick, nil
}

// Liquidity returns a copy of the active liquidity.
func (p *Pool) Liquidity() (*big.Int, error) {
	if !p.ready {
		return nil, ErrPoolNotInitialized
	}
	return new(big.Int).Set(p.liquidity), nil
}

// SqrtPriceX96 returns a copy of the current sqrt price.
func (p *Pool) SqrtPriceX96() (*big.Int, error) {
	if !p.ready {
		return nil, ErrPoolNotInitialized
	}
	return new(big.Int).Set(p.sqrtPriceX96), nil
}

// ActiveTickRange returns the spacing-aligned range containing the current tick.
func (p *Pool) ActiveTickRange() (model.TickRange, error) {
	if !p.ready {
		return model.TickRange{}, ErrPoolNotInitialized
	}
	lower := model.FloorTick(p.tick, p.tickSpacing)
	return model.TickRange{Lower: lower, Upper: lower + p.tickSpacing}, nil
}

// Positions returns copies of the positions added during the run.
func (p *Pool) Positions() []model.LiquidityPosition {
	out := make([]model.LiquidityPosition, len(p.positions))
	for i, pos := range p.positions {
		out[i] = model.LiquidityPosition{Owner: pos.Owner, Range: pos.Range, Liquidity: new(big.Int).Set(pos.Liquidity)}
	}
	return out
}

// Price returns how many tokenB one tokenA buys at the current sqrt price, in human units.
func (p *Pool) Price(tokenA, tokenB string) (decimal.Decimal, error) {
	if !p.ready {
		return decimal.Zero, ErrPoolNotInitialized
	}
	_, aIsToken0, err := p.Token(tokenA)
	if err != nil {
		return decimal.Zero, err
	}
	_, bIsToken0, err := p.Token(tokenB)
	if err != nil {
		return decimal.Zero, err
	}
	if aIsToken0 == bIsToken0 {
		return decimal.New(1, 0), nil
	}

	priceX192 := decimal.NewFromBigInt(new(big.Int).Mul(p.sqrtPriceX96, p.sqrtPriceX96), 0)
	q192 := decimal.NewFromBigInt(Q192, 0)
	shift := int32(p.token0.Decimals) - int32(p.token1.Decimals)
	if aIsToken0 {
		return priceX192.Shift(shift).DivRound(q192, PricePrecision), nil
	}
	return q192.Shift(-shift).DivRound(priceX192, PricePrecision), nil
}

// AddLiquidity provisions raw token amounts over r and returns the created position and
// the amounts actually consumed. Pool state is only touched once every check passed.
func (p *Pool) AddLiquidity(owner string, r model.TickRange, amount0, amount1 *big.Int) (model.LiquidityPosition, *big.Int, *big.Int, error) {
	if !p.ready {
		return model.LiquidityPosition{}, nil, nil, ErrPoolNotInitialized
	}
	if err := r.Validate(p.tickSpacing); err != nil {
		return model.LiquidityPosition{}, nil, nil, fmt.Errorf("%w: %v", ErrInvalidTickRange, err)
	}
	if r.Lower < MinTick || r.Upper > MaxTick {
		return model.LiquidityPosition{}, nil, nil, fmt.Errorf("%w: [%d, %d) outside tick bounds", ErrInvalidTickRange, r.Lower, r.Upper)
	}
	amount0 = orZero(amount0)
	amount1 = orZero(amount1)
	if amount0.Sign() < 0 || amount1.Sign() < 0 {
		return model.LiquidityPosition{}, nil, nil, fmt.Errorf("%w: negative liquidity amount", ErrInvalidAmount)
	}

	sqrtLower, err := SqrtRatioAtTick(r.Lower)
	if err != nil {
		return model.LiquidityPosition{}, nil, nil, err
	}
	sqrtUpper, err := SqrtRatioAtTick(r.Upper)
	if err != nil {
		return model.LiquidityPosition{}, nil, nil, err
	}

	inside := p.sqrtPriceX96.Cmp(sqrtLower) > 0 && p.sqrtPriceX96.Cmp(sqrtUpper) < 0
	if inside && (amount0.Sign() == 0) != (amount1.Sign() == 0) {
		return model.LiquidityPosition{}, nil, nil, ErrSingleSidedNotAllowed
	}

	liquidity := LiquidityForAmounts(p.sqrtPriceX96, sqrtLower, sqrtUpper, amount0, amount1)
	if liquidity.Sign() == 0 {
		return model.LiquidityPosition{}, nil, nil, ErrZeroLiquidity
	}
	used0, used1 := AmountsForLiquidity(p.sqrtPriceX96, sqrtLower, sqrtUpper, liquidity)
	if used0.Cmp(amount0) > 0 {
		used0.Set(amount0)
	}
	if used1.Cmp(amount1) > 0 {
		used1.Set(amount1)
	}

	p.addTickNet(r.Lower, liquidity)
	p.addTickNet(r.Upper, new(big.Int).Neg(liquidity))
	if r.Lower < p.minTick {
		p.minTick = r.Lower
	}
	if r.Upper > p.maxTick {
		p.maxTick = r.Upper
	}
	if r.Contains(p.tick) {
		p.liquidity.Add(p.liquidity, liquidity)
	}

	position := model.LiquidityPosition{Owner: owner, Range: r, Liquidity: liquidity}
	p.positions = append(p.positions, position)
	return model.LiquidityPosition{Owner: owner, Range: r, Liquidity: new(big.Int).Set(liquidity)}, used0, used1, nil
}

// Swap sells amountIn raw units of tokenIn. The fee is taken from the input first
// (rounded up), then the remainder walks the curve one tick spacing at a time.
// Output is rounded down on every step. Either the whole swap applies or nothing does.
func (p *Pool) Swap(amountIn *big.Int, tokenIn string) (SwapResult, error) {
	if !p.ready {
		return SwapResult{}, ErrPoolNotInitialized
	}
	_, zeroForOne, err := p.Token(tokenIn)
	if err != nil {
		return SwapResult{}, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return SwapResult{}, fmt.Errorf("%w: swap amount must be positive", ErrInvalidAmount)
	}

	fee := mulDivRoundingUp(amountIn, big.NewInt(int64(p.fee)), big.NewInt(FeeDenominator))
	remaining := new(big.Int).Sub(amountIn, fee)
	consumed := new(big.Int).Set(remaining)

	sqrtPrice := new(big.Int).Set(p.sqrtPriceX96)
	liquidity := new(big.Int).Set(p.liquidity)
	tick := p.tick
	amountOut := new(big.Int)
	crossed := 0

	for remaining.Sign() > 0 {
		next := model.FloorTick(tick, p.tickSpacing)
		if !zeroForOne {
			next += p.tickSpacing
		}
		if next < p.minTick || next > p.maxTick || next < MinTick || next > MaxTick {
			return SwapResult{}, fmt.Errorf("%w: %s input left at tick %d", ErrInsufficientLiquidity, remaining, tick)
		}

		target, err := SqrtRatioAtTick(next)
		if err != nil {
			return SwapResult{}, err
		}

		if liquidity.Sign() > 0 {
			var toTarget *big.Int
			if zeroForOne {
				toTarget = Amount0Delta(target, sqrtPrice, liquidity, true)
			} else {
				toTarget = Amount1Delta(sqrtPrice, target, liquidity, true)
			}

			stepStart := sqrtPrice
			if remaining.Cmp(toTarget) >= 0 {
				sqrtPrice = target
				remaining.Sub(remaining, toTarget)
			} else {
				sqrtPrice, err = NextSqrtPriceFromInput(sqrtPrice, liquidity, remaining, zeroForOne)
				if err != nil {
					return SwapResult{}, err
				}
				remaining.SetInt64(0)
			}

			if zeroForOne {
				amountOut.Add(amountOut, Amount1Delta(sqrtPrice, stepStart, liquidity, false))
			} else {
				amountOut.Add(amountOut, Amount0Delta(stepStart, sqrtPrice, liquidity, false))
			}
		} else {
			sqrtPrice = target
		}

		if sqrtPrice.Cmp(target) == 0 {
			net := p.ticks[next]
			if net != nil {
				if zeroForOne {
					liquidity.Sub(liquidity, net)
				} else {
					liquidity.Add(liquidity, net)
				}
				if liquidity.Sign() < 0 {
					return SwapResult{}, fmt.Errorf("%w: crossing tick %d", ErrLiquidityUnderflow, next)
				}
			}
			if zeroForOne {
				tick = next - 1
			} else {
				tick = next
			}
			crossed++
			continue
		}

		tick, err = TickAtSqrtRatio(sqrtPrice)
		if err != nil {
			return SwapResult{}, err
		}
	}

	p.sqrtPriceX96 = sqrtPrice
	p.liquidity = liquidity
	p.tick = tick

	return SwapResult{
		AmountIn:       new(big.Int).Set(amountIn),
		FeeAmount:      fee,
		AmountConsumed: consumed,
		AmountOut:      amountOut,
		TickAfter:      tick,
		LiquidityAfter: new(big.Int).Set(liquidity),
		SqrtPriceAfter: new(big.Int).Set(sqrtPrice),
		TicksCrossed:   crossed,
	}, nil
}

// Snapshot exports the current pool state.
func (p *Pool) Snapshot() (model.PoolSnapshot, error) {
	if !p.ready {
		return model.PoolSnapshot{}, ErrPoolNotInitialized
	}
	ticks := make([]model.TickLiquidity, 0, len(p.ticks))
	for tick, net := range p.ticks {
		ticks = append(ticks, model.TickLiquidity{Tick: tick, LiquidityNet: new(big.Int).Set(net)})
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Tick < ticks[j].Tick })

	active, _ := p.ActiveTickRange()
	window := (active.Lower - p.minTick) / p.tickSpacing
	if above := (p.maxTick - active.Upper) / p.tickSpacing; above > window {
		window = above
	}

	return model.PoolSnapshot{
		PoolID:       p.id,
		Block:        p.block,
		Token0:       p.token0,
		Token1:       p.token1,
		FeeTier:      p.fee,
		TickSpacing:  p.tickSpacing,
		CurrentTick:  p.tick,
		SqrtPriceX96: new(big.Int).Set(p.sqrtPriceX96),
		Liquidity:    new(big.Int).Set(p.liquidity),
		Ticks:        ticks,
		TickWindow:   window,
	}, nil
}

func (p *Pool) addTickNet(tick int32, delta *big.Int) {
	net, ok := p.ticks[tick]
	if !ok {
		net = new(big.Int)
		p.ticks[tick] = net
	}
	net.Add(net, delta)
	if net.Sign() == 0 {
		delete(p.ticks, tick)
	}
}

func clampTick(tick, spacing int32) int32 {
	minAligned := -model.FloorTick(MaxTick, spacing)
	maxAligned := model.FloorTick(MaxTick, spacing)
	if tick < minAligned {
		return minAligned
	}
	if tick > maxAligned {
		return maxAligned
	}
	return tick
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
