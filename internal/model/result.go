package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// SlippageResult compares the pre-trade quote with the realized execution price.
type SlippageResult struct {
	QuotedPrice         decimal.Decimal `json:"quoted_price"`
	EffectivePrice      decimal.Decimal `json:"effective_price"`
	SlippageFraction    decimal.Decimal `json:"slippage_fraction"`
	PriceImpactFraction decimal.Decimal `json:"price_impact_fraction"`
}

// PoolState is one observation of the pool during a run.
type PoolState struct {
	Tick         int32           `json:"tick"`
	Liquidity    *big.Int        `json:"liquidity"`
	SqrtPriceX96 *big.Int        `json:"sqrt_price_x96,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Fee          uint32          `json:"fee"`
	TickSpacing  int32           `json:"tick_spacing"`
}

// ActionOutcome records what one applied action did.
type ActionOutcome struct {
	Index        int             `json:"index"`
	Kind         ActionKind      `json:"kind"`
	Agent        string          `json:"agent"`
	TokenIn      string          `json:"token_in,omitempty"`
	TokenOut     string          `json:"token_out,omitempty"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	AmountOut    decimal.Decimal `json:"amount_out"`
	Used0        decimal.Decimal `json:"used0"`
	Used1        decimal.Decimal `json:"used1"`
	Liquidity    *big.Int        `json:"liquidity,omitempty"`
	TicksCrossed int             `json:"ticks_crossed"`
}

// RunReport is the per-run result surface handed to the presentation layer.
type RunReport struct {
	RunID         string          `json:"run_id"`
	PoolID        string          `json:"pool_id"`
	Block         uint64          `json:"block"`
	Token0        Token           `json:"token0"`
	Token1        Token           `json:"token1"`
	Initial       PoolState       `json:"initial"`
	PostLiquidity *PoolState      `json:"post_liquidity,omitempty"`
	PostTrade     *PoolState      `json:"post_trade,omitempty"`
	Slippage      *SlippageResult `json:"slippage,omitempty"`
	Actions       []ActionOutcome `json:"actions"`
}
