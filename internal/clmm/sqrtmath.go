package clmm

import (
	"fmt"
	"math/big"
)

func mulDiv(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, denominator)
}

func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	quotient, remainder := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}

func divRoundingUp(a, b *big.Int) *big.Int {
	quotient, remainder := new(big.Int).QuoRem(a, b, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}

func sortRatios(a, b *big.Int) (*big.Int, *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// Amount0Delta is the token0 amount between two sqrt prices for a liquidity:
// L * (sqrtB - sqrtA) / (sqrtA * sqrtB).
func Amount0Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) *big.Int {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	if sqrtA.Sign() <= 0 {
		return new(big.Int)
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return divRoundingUp(mulDivRoundingUp(numerator1, numerator2, sqrtB), sqrtA)
	}
	return new(big.Int).Quo(mulDiv(numerator1, numerator2, sqrtB), sqrtA)
}

// Amount1Delta is the token1 amount between two sqrt prices for a liquidity:
// L * (sqrtB - sqrtA).
func Amount1Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) *big.Int {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96)
	}
	return mulDiv(liquidity, diff, Q96)
}

// NextSqrtPriceFromInput moves the price by an exact input amount. Rounding keeps the
// price on the side that never hands out more than the input pays for.
func NextSqrtPriceFromInput(sqrtPrice, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPrice.Sign() <= 0 || liquidity.Sign() <= 0 {
		return nil, fmt.Errorf("sqrt price and liquidity must be positive")
	}
	if amountIn.Sign() == 0 {
		return new(big.Int).Set(sqrtPrice), nil
	}
	if zeroForOne {
		// L * sqrtP / (L + amount * sqrtP), rounded up.
		numerator1 := new(big.Int).Lsh(liquidity, 96)
		product := new(big.Int).Mul(amountIn, sqrtPrice)
		denominator := new(big.Int).Add(numerator1, product)
		return mulDivRoundingUp(numerator1, sqrtPrice, denominator), nil
	}
	// sqrtP + amount / L, rounded down.
	quotient := new(big.Int).Lsh(amountIn, 96)
	quotient.Quo(quotient, liquidity)
	return quotient.Add(quotient, sqrtPrice), nil
}

// LiquidityForAmount0 is the liquidity that amount0 buys over [sqrtA, sqrtB].
func LiquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if diff.Sign() == 0 {
		return new(big.Int)
	}
	intermediate := mulDiv(sqrtA, sqrtB, Q96)
	return mulDiv(amount0, intermediate, diff)
}

// LiquidityForAmount1 is the liquidity that amount1 buys over [sqrtA, sqrtB].
func LiquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if diff.Sign() == 0 {
		return new(big.Int)
	}
	return mulDiv(amount1, Q96, diff)
}

// LiquidityForAmounts picks the largest liquidity both amounts can fund at the current price.
func LiquidityForAmounts(sqrtPrice, sqrtA, sqrtB, amount0, amount1 *big.Int) *big.Int {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	switch {
	case sqrtPrice.Cmp(sqrtA) <= 0:
		return LiquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtPrice.Cmp(sqrtB) < 0:
		l0 := LiquidityForAmount0(sqrtPrice, sqrtB, amount0)
		l1 := LiquidityForAmount1(sqrtA, sqrtPrice, amount1)
		if l0.Cmp(l1) < 0 {
			return l0
		}
		return l1
	default:
		return LiquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}

// AmountsForLiquidity returns the token amounts a position of liquidity needs, rounded up.
func AmountsForLiquidity(sqrtPrice, sqrtA, sqrtB, liquidity *big.Int) (*big.Int, *big.Int) {
	sqrtA, sqrtB = sortRatios(sqrtA, sqrtB)
	switch {
	case sqrtPrice.Cmp(sqrtA) <= 0:
		return Amount0Delta(sqrtA, sqrtB, liquidity, true), new(big.Int)
	case sqrtPrice.Cmp(sqrtB) < 0:
		return Amount0Delta(sqrtPrice, sqrtB, liquidity, true), Amount1Delta(sqrtA, sqrtPrice, liquidity, true)
	default:
		return new(big.Int), Amount1Delta(sqrtA, sqrtB, liquidity, true)
	}
}
