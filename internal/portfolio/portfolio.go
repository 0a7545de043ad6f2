package portfolio

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Portfolio holds signed token balances for one agent, keyed by token symbol.
type Portfolio struct {
	mu       sync.RWMutex
	agent    string
	balances map[string]decimal.Decimal
}

// New creates an empty portfolio for agent.
func New(agent string) *Portfolio {
	return &Portfolio{agent: agent, balances: make(map[string]decimal.Decimal)}
}

// NewWithBalances creates a portfolio with opening balances.
func NewWithBalances(agent string, balances map[string]decimal.Decimal) *Portfolio {
	p := New(agent)
	for token, amount := range balances {
		p.ApplyDelta(token, amount)
	}
	return p
}

// Agent returns the owning agent name.
func (p *Portfolio) Agent() string {
	return p.agent
}

// ApplyDelta adds a signed amount to the token balance.
func (p *Portfolio) ApplyDelta(token string, amount decimal.Decimal) {
	key := Key(token)
	if key == "" {
		return
	}
	p.mu.Lock()
	p.balances[key] = p.balances[key].Add(amount)
	p.mu.Unlock()
}

// Balance returns the token balance, zero when the token was never touched.
func (p *Portfolio) Balance(token string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balances[Key(token)]
}

// Snapshot returns a copy of all balances.
func (p *Portfolio) Snapshot() map[string]decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(p.balances))
	for token, amount := range p.balances {
		out[token] = amount
	}
	return out
}

// Diff returns current minus before for every token present in either side.
// Tokens whose balance did not change are omitted.
func (p *Portfolio) Diff(before map[string]decimal.Decimal) map[string]decimal.Decimal {
	current := p.Snapshot()
	out := make(map[string]decimal.Decimal)
	for token, amount := range current {
		delta := amount.Sub(before[token])
		if !delta.IsZero() {
			out[token] = delta
		}
	}
	for token, amount := range before {
		if _, ok := current[token]; ok {
			continue
		}
		if !amount.IsZero() {
			out[token] = amount.Neg()
		}
	}
	return out
}

// Tokens lists the tokens with a recorded balance, sorted.
func (p *Portfolio) Tokens() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.balances))
	for token := range p.balances {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// Key normalizes a token name to the form balances are stored under.
func Key(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}
