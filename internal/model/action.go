package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ActionKind names an action variant.
type ActionKind string

const (
	ActionLiquidityQuote ActionKind = "liquidity_quote"
	ActionTrade          ActionKind = "trade"
)

// Action is either a LiquidityQuote or a Trade.
type Action interface {
	Kind() ActionKind
	AgentName() string
	Pool() string
}

// LiquidityQuote provides Amount0/Amount1 over Range on behalf of Agent.
type LiquidityQuote struct {
	Agent   string
	PoolID  string
	Amount0 decimal.Decimal
	Amount1 decimal.Decimal
	Range   TickRange
}

func (LiquidityQuote) Kind() ActionKind    { return ActionLiquidityQuote }
func (q LiquidityQuote) AgentName() string { return q.Agent }
func (q LiquidityQuote) Pool() string      { return q.PoolID }

// Trade sells exactly one of Amount0In / Amount1In into the pool.
type Trade struct {
	Agent     string
	PoolID    string
	Amount0In decimal.Decimal
	Amount1In decimal.Decimal
}

func (Trade) Kind() ActionKind    { return ActionTrade }
func (t Trade) AgentName() string { return t.Agent }
func (t Trade) Pool() string      { return t.PoolID }

// ZeroForOne reports whether the trade sells token0.
func (t Trade) ZeroForOne() bool {
	return !t.Amount0In.IsZero()
}

// Validate checks that exactly one positive input amount is set.
func (t Trade) Validate() error {
	if t.Amount0In.IsNegative() || t.Amount1In.IsNegative() {
		return fmt.Errorf("trade amounts must not be negative")
	}
	if t.Amount0In.IsZero() == t.Amount1In.IsZero() {
		return fmt.Errorf("trade must set exactly one of amount0_in and amount1_in")
	}
	return nil
}
