package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Engine deterministic paper-trading simulator for one trading mode.
// A cycle reads the stored snapshot once, applies exits and intents in
// memory, and writes the new snapshot once. The mutex makes that
// read-compute-write sequence a critical section: concurrent triggers
// (scheduler plus interactive endpoint) serialize instead of losing
// updates.
type Engine struct {
	mode           string
	symbols        []string // tradable whitelist, fixed iteration order
	initialBalance float64

	store  PortfolioStore
	ledger TradeLedger

	mu    sync.Mutex
	nowFn func() time.Time
}

// EngineConfig wiring for NewEngine.
type EngineConfig struct {
	Mode           string   // portfolio document key, e.g. "paper" or "live"
	Symbols        []string // tradable whitelist in admission order
	InitialBalance float64
	Store          PortfolioStore
	Ledger         TradeLedger // optional
}

// NewEngine creates a simulation engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Mode == "" {
		return nil, fmt.Errorf("engine mode cannot be empty")
	}
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be greater than 0, got %.2f", cfg.InitialBalance)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("portfolio store is required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("at least one tradable symbol is required")
	}

	return &Engine{
		mode:           cfg.Mode,
		symbols:        append([]string(nil), cfg.Symbols...),
		initialBalance: cfg.InitialBalance,
		store:          cfg.Store,
		ledger:         cfg.Ledger,
		nowFn:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Mode returns the portfolio document key this engine owns.
func (e *Engine) Mode() string { return e.mode }

// InitialBalance returns the P&L baseline.
func (e *Engine) InitialBalance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialBalance
}

func (e *Engine) now() time.Time { return e.nowFn() }

// ExecuteSimulatedTrade runs one full simulation cycle: close positions
// whose stop-loss or profit-target triggered, normalize the signal into
// intents, admit each intent in whitelist order, recompute the account
// aggregates, and persist the new snapshot. The snapshot write is the
// last fallible step; any earlier error leaves the stored portfolio
// exactly as it was.
func (e *Engine) ExecuteSimulatedTrade(ctx context.Context, signal any, prices PriceSource) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	portfolio, err := e.loadLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	now := e.now()
	st := &cycleState{
		cash:    portfolio.AvailableCash,
		skipped: make(map[string]string),
	}

	// 1. Exit sweep runs before any new intent is admitted.
	kept, closeTrades, cashReleased, realized := sweepExits(portfolio.Positions, prices, now)
	st.positions = kept
	st.trades = closeTrades
	st.cash += cashReleased
	st.realized += realized
	for _, tr := range closeTrades {
		log.Printf("✅ [%s] Closed %s %s: %s, PnL: $%.2f", e.mode, tr.Symbol, tr.Side, tr.Reason, tr.PnL)
	}

	// 2. Admit intents in fixed whitelist order.
	intents := NormalizeSignal(signal)
	for _, symbol := range e.symbols {
		intent, ok := intents[symbol]
		if !ok || intent.Side == SideHold {
			continue
		}

		price, ok := prices.Price(symbol)
		if !ok {
			log.Printf("⚠️  [%s] No market price for %s, skipping", e.mode, symbol)
			st.skip(symbol, "no market price available")
			continue
		}

		e.applyIntent(st, intent, price)
		if reason, rejected := st.skipped[symbol]; rejected {
			log.Printf("⚠️  [%s] %s intent rejected: %s", e.mode, symbol, reason)
		}
	}

	// 3. Recompute aggregates from the resulting position set.
	updated := e.recompute(st.cash, st.positions, prices, now)

	// 4. Ledger appends go first so a dead ledger aborts the cycle
	// before the snapshot changes. Orphan ledger rows from a failed
	// snapshot write are tolerable; a snapshot with unrecorded trades
	// is not.
	if err := e.appendTrades(ctx, st.trades); err != nil {
		return nil, err
	}

	// 5. Persist: the one and only snapshot write of the cycle.
	if err := e.store.PutPortfolio(ctx, e.mode, updated); err != nil {
		return nil, fmt.Errorf("failed to store portfolio: %w", err)
	}

	return &Result{
		Trades:    st.trades,
		Portfolio: updated,
		TotalPnL:  st.realized,
		Skipped:   st.skipped,
	}, nil
}

// ValuePositions refreshes per-position mark-to-market fields and the
// derived account aggregates without admitting any trades. Positions
// with no price this tick keep their previous mark.
func (e *Engine) ValuePositions(ctx context.Context, prices PriceSource) (*Portfolio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	portfolio, err := e.loadLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if len(portfolio.Positions) == 0 {
		return portfolio, nil
	}

	now := e.now()
	totalUnrealized := 0.0
	totalMargin := 0.0
	for i := range portfolio.Positions {
		pos := &portfolio.Positions[i]
		if price, ok := prices.Price(pos.Symbol); ok {
			pos.CurrentPrice = price
			pos.UnrealizedPnL = UnrealizedPnL(*pos, price)
			pos.LastUpdated = now
		}
		totalUnrealized += pos.UnrealizedPnL
		totalMargin += pos.MarginUsed
	}

	portfolio.AccountValue = portfolio.AvailableCash + totalMargin + totalUnrealized
	portfolio.TotalReturn = portfolio.AccountValue - e.initialBalance
	portfolio.LastUpdated = now

	if err := e.store.PutPortfolio(ctx, e.mode, portfolio); err != nil {
		return nil, fmt.Errorf("failed to store portfolio: %w", err)
	}
	return portfolio, nil
}

// Portfolio returns the current snapshot, initializing it on first use.
func (e *Engine) Portfolio(ctx context.Context) (*Portfolio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(ctx)
}

// Reset recreates the portfolio from the given balance (or the
// configured initial balance when <= 0) and makes it the new P&L
// baseline. The trade ledger is left intact.
func (e *Engine) Reset(ctx context.Context, initialBalance float64) (*Portfolio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if initialBalance <= 0 {
		initialBalance = e.initialBalance
	}

	fresh := NewPortfolio(initialBalance)
	fresh.LastUpdated = e.now()
	if err := e.store.PutPortfolio(ctx, e.mode, fresh); err != nil {
		return nil, fmt.Errorf("failed to reset portfolio: %w", err)
	}

	e.initialBalance = initialBalance
	log.Printf("🔄 [%s] Portfolio reset to %.2f", e.mode, initialBalance)
	return fresh, nil
}

// loadLocked reads the stored snapshot; on first use it seeds and
// persists a fresh one. Callers must hold e.mu.
func (e *Engine) loadLocked(ctx context.Context) (*Portfolio, error) {
	portfolio, err := e.store.GetPortfolio(ctx, e.mode)
	if err == nil {
		return portfolio, nil
	}
	if !errors.Is(err, ErrNoPortfolio) {
		return nil, err
	}

	fresh := NewPortfolio(e.initialBalance)
	fresh.LastUpdated = e.now()
	if err := e.store.PutPortfolio(ctx, e.mode, fresh); err != nil {
		return nil, err
	}
	log.Printf("📊 [%s] Initialized portfolio with balance %.2f", e.mode, e.initialBalance)
	return fresh, nil
}

// recompute derives the account aggregates from the final cash level and
// position set. This is the only place AccountValue is written during a
// cycle; positions with no price contribute their margin but zero
// unrealized P&L.
func (e *Engine) recompute(cash float64, positions []Position, prices PriceSource, now time.Time) *Portfolio {
	totalUnrealized := 0.0
	totalMargin := 0.0
	for i := range positions {
		pos := &positions[i]
		totalMargin += pos.MarginUsed
		if price, ok := prices.Price(pos.Symbol); ok {
			pos.CurrentPrice = price
			pos.UnrealizedPnL = UnrealizedPnL(*pos, price)
			totalUnrealized += pos.UnrealizedPnL
		}
	}

	accountValue := cash + totalMargin + totalUnrealized
	return &Portfolio{
		AccountValue:  accountValue,
		AvailableCash: cash,
		TotalReturn:   accountValue - e.initialBalance,
		Positions:     positions,
		LastUpdated:   now,
	}
}

func (e *Engine) appendTrades(ctx context.Context, trades []TradeRecord) error {
	if e.ledger == nil {
		return nil
	}
	for _, tr := range trades {
		if err := e.ledger.AppendTrade(ctx, e.mode, tr); err != nil {
			return fmt.Errorf("failed to append %s trade for %s to ledger: %w", tr.Type, tr.Symbol, err)
		}
	}
	return nil
}
