package slippage

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"slippageScope/internal/model"
)

// Precision is the number of decimal places kept for derived prices and fractions.
const Precision int32 = 30

// ErrDivisionUndefined is returned when a ratio has a zero denominator, e.g. a zero-size trade.
var ErrDivisionUndefined = errors.New("division undefined")

var one = decimal.New(1, 0)

// Compute compares the realized execution with the pre-trade quote.
//
// quoted is the price of one unit of the sold token in units of the bought token,
// fee is the pool fee as a fraction, amountIn and amountOut are the magnitudes of the
// trader's portfolio deltas. EffectivePrice is expressed in the same direction as the
// quote, so a worse fill always yields a positive SlippageFraction. SlippageFraction
// includes the pool fee; PriceImpactFraction removes it.
func Compute(quoted, fee, amountIn, amountOut decimal.Decimal) (model.SlippageResult, error) {
	amountIn = amountIn.Abs()
	amountOut = amountOut.Abs()
	if amountOut.IsZero() {
		return model.SlippageResult{}, fmt.Errorf("%w: nothing received", ErrDivisionUndefined)
	}
	if amountIn.IsZero() {
		return model.SlippageResult{}, fmt.Errorf("%w: nothing sold", ErrDivisionUndefined)
	}
	if !quoted.IsPositive() {
		return model.SlippageResult{}, fmt.Errorf("%w: quoted price %s", ErrDivisionUndefined, quoted)
	}
	if fee.IsNegative() || fee.GreaterThanOrEqual(one) {
		return model.SlippageResult{}, fmt.Errorf("%w: fee %s", ErrDivisionUndefined, fee)
	}

	effective := amountOut.DivRound(amountIn, Precision)
	slippage := one.Sub(effective.DivRound(quoted, Precision))
	feeAdjusted := quoted.Mul(one.Sub(fee))
	impact := one.Sub(effective.DivRound(feeAdjusted, Precision))

	return model.SlippageResult{
		QuotedPrice:         quoted,
		EffectivePrice:      effective,
		SlippageFraction:    slippage,
		PriceImpactFraction: impact,
	}, nil
}

// Percent renders a fraction as a percentage with places decimals.
func Percent(fraction decimal.Decimal, places int32) string {
	return fraction.Shift(2).StringFixed(places) + "%"
}
