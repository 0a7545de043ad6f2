package model

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Token captures the ERC20 metadata the simulator needs.
type Token struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
}

// Matches reports whether id names this token, by symbol or by address.
func (t Token) Matches(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if t.Symbol != "" && strings.EqualFold(t.Symbol, id) {
		return true
	}
	return t.Address != "" && strings.EqualFold(t.Address, id)
}

// Key returns the portfolio key for the token.
func (t Token) Key() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address
}

// ToRaw converts a human amount to integer base units, truncating below one unit.
func (t Token) ToRaw(amount decimal.Decimal) *big.Int {
	return amount.Shift(int32(t.Decimals)).BigInt()
}

// FromRaw converts integer base units to a human amount.
func (t Token) FromRaw(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(t.Decimals))
}
