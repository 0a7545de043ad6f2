package portfolio

import "sync"

// Book owns the portfolios of every agent in one run.
type Book struct {
	mu     sync.Mutex
	agents map[string]*Portfolio
}

// NewBook creates an empty set of portfolios.
func NewBook() *Book {
	return &Book{agents: make(map[string]*Portfolio)}
}

// Get returns the agent's portfolio, creating it on first use.
func (b *Book) Get(agent string) *Portfolio {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.agents[agent]
	if !ok {
		p = New(agent)
		b.agents[agent] = p
	}
	return p
}

// Put registers a portfolio, replacing any existing one for the same agent.
func (b *Book) Put(p *Portfolio) {
	b.mu.Lock()
	b.agents[p.Agent()] = p
	b.mu.Unlock()
}
