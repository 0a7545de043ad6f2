package executor

import (
	"math/big"

	"slippageScope/internal/clmm"
	"slippageScope/internal/model"
)

// Policy decides how an action moves the pool.
type Policy interface {
	Name() string
	AddLiquidity(pool *clmm.Pool, owner string, r model.TickRange, amount0, amount1 *big.Int) (model.LiquidityPosition, *big.Int, *big.Int, error)
	Swap(pool *clmm.Pool, amountIn *big.Int, tokenIn string) (clmm.SwapResult, error)
}

// Replay moves the price only along the pool curve; no outside order flow is modeled.
type Replay struct{}

func (Replay) Name() string { return "replay" }

func (Replay) AddLiquidity(pool *clmm.Pool, owner string, r model.TickRange, amount0, amount1 *big.Int) (model.LiquidityPosition, *big.Int, *big.Int, error) {
	return pool.AddLiquidity(owner, r, amount0, amount1)
}

func (Replay) Swap(pool *clmm.Pool, amountIn *big.Int, tokenIn string) (clmm.SwapResult, error) {
	return pool.Swap(amountIn, tokenIn)
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, bool) {
	switch name {
	case "", "replay":
		return Replay{}, true
	default:
		return nil, false
	}
}
