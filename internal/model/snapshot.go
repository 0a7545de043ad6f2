package model

import (
	"fmt"
	"math/big"
)

// DefaultTickWindow is the number of tick spacings tracked on each side of the active range.
const DefaultTickWindow = 10

// TickRange is a half-open [Lower, Upper) tick interval.
type TickRange struct {
	Lower int32 `json:"lower"`
	Upper int32 `json:"upper"`
}

// Validate checks alignment and ordering against a tick spacing.
func (r TickRange) Validate(tickSpacing int32) error {
	if tickSpacing <= 0 {
		return fmt.Errorf("tick spacing must be positive")
	}
	if r.Lower >= r.Upper {
		return fmt.Errorf("lower tick %d must be below upper tick %d", r.Lower, r.Upper)
	}
	if r.Lower%tickSpacing != 0 || r.Upper%tickSpacing != 0 {
		return fmt.Errorf("ticks [%d, %d) not aligned to spacing %d", r.Lower, r.Upper, tickSpacing)
	}
	return nil
}

// Contains reports whether tick lies in [Lower, Upper).
func (r TickRange) Contains(tick int32) bool {
	return tick >= r.Lower && tick < r.Upper
}

// TickLiquidity is the net liquidity change applied when a tick is crossed upwards.
type TickLiquidity struct {
	Tick         int32    `json:"tick"`
	LiquidityNet *big.Int `json:"liquidity_net"`
}

// PoolSnapshot is the state needed to seed the pool model at one block.
type PoolSnapshot struct {
	PoolID       string          `json:"pool_id"`
	Address      string          `json:"address"`
	Block        uint64          `json:"block"`
	Token0       Token           `json:"token0"`
	Token1       Token           `json:"token1"`
	FeeTier      uint32          `json:"fee_tier"`
	TickSpacing  int32           `json:"tick_spacing"`
	CurrentTick  int32           `json:"current_tick"`
	SqrtPriceX96 *big.Int        `json:"sqrt_price_x96"`
	Liquidity    *big.Int        `json:"liquidity"`
	Ticks        []TickLiquidity `json:"ticks,omitempty"`
	TickWindow   int32           `json:"tick_window"`
}

// ActiveRange returns the spacing-aligned range that contains CurrentTick.
func (s PoolSnapshot) ActiveRange() TickRange {
	lower := FloorTick(s.CurrentTick, s.TickSpacing)
	return TickRange{Lower: lower, Upper: lower + s.TickSpacing}
}

// Clone returns a deep copy so callers never share big.Int state.
func (s PoolSnapshot) Clone() PoolSnapshot {
	out := s
	out.SqrtPriceX96 = cloneInt(s.SqrtPriceX96)
	out.Liquidity = cloneInt(s.Liquidity)
	if s.Ticks != nil {
		out.Ticks = make([]TickLiquidity, len(s.Ticks))
		for i, t := range s.Ticks {
			out.Ticks[i] = TickLiquidity{Tick: t.Tick, LiquidityNet: cloneInt(t.LiquidityNet)}
		}
	}
	return out
}

// FloorTick rounds tick down to a multiple of spacing (towards negative infinity).
func FloorTick(tick, spacing int32) int32 {
	if spacing <= 0 {
		return tick
	}
	compressed := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		compressed--
	}
	return compressed * spacing
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// LiquidityPosition is liquidity owned by one agent over one tick range.
type LiquidityPosition struct {
	Owner     string    `json:"owner"`
	Range     TickRange `json:"range"`
	Liquidity *big.Int  `json:"liquidity"`
}
