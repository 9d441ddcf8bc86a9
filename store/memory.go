package store

import (
	"context"
	"sync"

	"simex/sim"
)

// Memory in-memory store, used by tests and as a fallback when no
// database is configured. Implements sim.PortfolioStore and
// sim.TradeLedger.
type Memory struct {
	mu         sync.RWMutex
	portfolios map[string]*sim.Portfolio
	trades     map[string][]sim.TradeRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		portfolios: make(map[string]*sim.Portfolio),
		trades:     make(map[string][]sim.TradeRecord),
	}
}

// GetPortfolio returns a copy of the stored snapshot for mode.
func (m *Memory) GetPortfolio(ctx context.Context, mode string) (*sim.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.portfolios[mode]
	if !ok {
		return nil, sim.ErrNoPortfolio
	}
	return p.Clone(), nil
}

// PutPortfolio replaces the snapshot for mode.
func (m *Memory) PutPortfolio(ctx context.Context, mode string, p *sim.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.portfolios[mode] = p.Clone()
	return nil
}

// AppendTrade appends an immutable trade record for mode.
func (m *Memory) AppendTrade(ctx context.Context, mode string, tr sim.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trades[mode] = append(m.trades[mode], tr)
	return nil
}

// RecentTrades returns up to limit trade records for mode, newest first.
func (m *Memory) RecentTrades(ctx context.Context, mode string, limit int) ([]sim.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.trades[mode]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}

	out := make([]sim.TradeRecord, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
