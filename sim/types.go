package sim

import (
	"context"
	"errors"
	"time"
)

// ErrNoPortfolio is returned by a PortfolioStore when no snapshot has been
// written yet for the requested mode.
var ErrNoPortfolio = errors.New("no portfolio stored for this mode")

// Side position direction
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideHold  Side = "HOLD"
)

// TradeType ledger record type
type TradeType string

const (
	TradeOpen   TradeType = "OPEN"
	TradeClose  TradeType = "CLOSE"
	TradeUpdate TradeType = "UPDATE"
)

// Position simulated perpetual position. At most one position can exist
// per symbol at any time; the engine enforces this on every mutation.
type Position struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"` // LONG or SHORT
	EntryPrice float64 `json:"entryPrice"`
	Quantity   float64 `json:"quantity"` // notional / entryPrice at last update
	Notional   float64 `json:"notional"` // USD exposure
	Leverage   float64 `json:"leverage"`
	MarginUsed float64 `json:"marginUsed"` // notional / leverage, committed from cash

	// Trigger levels, 0 = not set
	ProfitTarget float64 `json:"profitTarget,omitempty"`
	StopLoss     float64 `json:"stopLoss,omitempty"`

	// Mark-to-market fields, refreshed by ValuePositions
	CurrentPrice  float64 `json:"currentPrice,omitempty"`
	UnrealizedPnL float64 `json:"unrealizedPnL,omitempty"`

	OpenedAt    time.Time `json:"openedAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Portfolio single account snapshot for one trading mode.
// AccountValue and TotalReturn are derived during recomputation and are
// never written directly by the admission logic.
type Portfolio struct {
	AccountValue  float64    `json:"accountValue"`  // cash + margin in use + unrealized P&L
	AvailableCash float64    `json:"availableCash"` // uncommitted capital, never negative
	TotalReturn   float64    `json:"totalReturn"`   // accountValue - initial balance
	Positions     []Position `json:"positions"`
	LastUpdated   time.Time  `json:"lastUpdated"`
}

// NewPortfolio creates a fresh snapshot seeded with the initial balance.
func NewPortfolio(initialBalance float64) *Portfolio {
	return &Portfolio{
		AccountValue:  initialBalance,
		AvailableCash: initialBalance,
		TotalReturn:   0,
		Positions:     []Position{},
		LastUpdated:   time.Now().UTC(),
	}
}

// FindPosition returns the index of the position for symbol, or -1.
func (p *Portfolio) FindPosition(symbol string) int {
	for i := range p.Positions {
		if p.Positions[i].Symbol == symbol {
			return i
		}
	}
	return -1
}

// Clone deep-copies the snapshot so a failed cycle can never leave a
// half-mutated portfolio behind.
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.Positions = make([]Position, len(p.Positions))
	copy(c.Positions, p.Positions)
	return &c
}

// TradeIntent canonical per-symbol decision, produced by NormalizeSignal.
type TradeIntent struct {
	Symbol       string  `json:"symbol"`
	Side         Side    `json:"side"` // LONG, SHORT or HOLD
	Notional     float64 `json:"notional"`
	Leverage     float64 `json:"leverage"`
	ProfitTarget float64 `json:"profitTarget"`
	StopLoss     float64 `json:"stopLoss"`
}

// TradeRecord immutable ledger entry.
type TradeRecord struct {
	Type       TradeType `json:"type"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entryPrice,omitempty"`
	ExitPrice  float64   `json:"exitPrice,omitempty"`
	Notional   float64   `json:"notional,omitempty"`
	Leverage   float64   `json:"leverage,omitempty"`
	PnL        float64   `json:"pnl,omitempty"`    // realized, CLOSE only
	Reason     string    `json:"reason,omitempty"` // SL/TP closes
	Timestamp  time.Time `json:"timestamp"`
}

// Result outcome of one simulation cycle.
type Result struct {
	Trades    []TradeRecord     `json:"trades"`
	Portfolio *Portfolio        `json:"portfolio"`
	TotalPnL  float64           `json:"totalPnL"`          // realized this cycle
	Skipped   map[string]string `json:"skipped,omitempty"` // symbol -> reject/skip reason
}

// PriceSource supplies the current price for a symbol. A false return
// means "no data this cycle" and the symbol is skipped, never an error.
type PriceSource interface {
	Price(symbol string) (float64, bool)
}

// PortfolioStore durable single-document portfolio storage, keyed by
// trading mode. Reads and writes are whole-document replacements.
type PortfolioStore interface {
	GetPortfolio(ctx context.Context, mode string) (*Portfolio, error)
	PutPortfolio(ctx context.Context, mode string, p *Portfolio) error
}

// TradeLedger append-only audit trail. The engine appends before it
// writes the snapshot, so a failed append aborts the cycle with the
// stored portfolio untouched.
type TradeLedger interface {
	AppendTrade(ctx context.Context, mode string, tr TradeRecord) error
}
