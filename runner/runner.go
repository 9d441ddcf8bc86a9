package runner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"simex/market"
	"simex/notify"
	"simex/sim"
)

// Config runner configuration for a single simulator.
type Config struct {
	ID           string
	Name         string
	ScanInterval time.Duration // signal scan cycle
	MarkInterval time.Duration // mark-to-market cycle
}

// Runner drives one simulator: it periodically fetches a signal, runs a
// full trade cycle against the engine, and marks open positions to
// market between cycles. Live-mode runners only mark to market.
type Runner struct {
	id       string
	name     string
	engine   *sim.Engine
	market   *market.Client
	signals  SignalSource
	notifier notify.Notifier

	scanInterval time.Duration
	markInterval time.Duration

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
}

// New creates a runner. A nil signal source is allowed: the runner then
// only marks to market and cycles must be triggered externally with an
// explicit payload.
func New(cfg Config, engine *sim.Engine, mkt *market.Client, signals SignalSource, notifier notify.Notifier) (*Runner, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("runner ID cannot be empty")
	}
	if engine == nil {
		return nil, fmt.Errorf("runner requires an engine")
	}
	if mkt == nil {
		return nil, fmt.Errorf("runner requires a market client")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 5 * time.Minute
	}
	if cfg.MarkInterval <= 0 {
		cfg.MarkInterval = time.Minute
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Runner{
		id:           cfg.ID,
		name:         cfg.Name,
		engine:       engine,
		market:       mkt,
		signals:      signals,
		notifier:     notifier,
		scanInterval: cfg.ScanInterval,
		markInterval: cfg.MarkInterval,
	}, nil
}

// ID returns the runner's unique identifier.
func (r *Runner) ID() string { return r.id }

// Name returns the runner's display name.
func (r *Runner) Name() string { return r.name }

// Engine exposes the underlying engine for API handlers.
func (r *Runner) Engine() *sim.Engine { return r.engine }

// IsRunning reports whether the background loop is active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRunning
}

// Start launches the background loop. Returns an error if already
// started.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("runner %s is already running", r.id)
	}
	r.isRunning = true
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	r.mu.Unlock()

	log.Printf("🚀 [%s] Simulator started (scan: %v, mark: %v)", r.name, r.scanInterval, r.markInterval)

	go r.loop(ctx, stopCh)
	return nil
}

// Stop signals the background loop to exit. Safe to call twice.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isRunning {
		return
	}
	r.isRunning = false
	close(r.stopCh)
	log.Printf("⏹ [%s] Simulator stopped", r.name)
}

func (r *Runner) loop(ctx context.Context, stopCh chan struct{}) {
	scanTicker := time.NewTicker(r.scanInterval)
	defer scanTicker.Stop()
	markTicker := time.NewTicker(r.markInterval)
	defer markTicker.Stop()

	// Live runners never pull signals; they only mark to market.
	scans := r.signals != nil && r.engine.Mode() != "live"

	// First cycle immediately rather than after a full interval.
	if scans {
		if err := r.RunCycle(ctx); err != nil {
			log.Printf("❌ [%s] First cycle failed: %v", r.name, err)
		}
	}

	for {
		select {
		case <-scanTicker.C:
			if !scans {
				continue
			}
			if err := r.RunCycle(ctx); err != nil {
				log.Printf("❌ [%s] Cycle failed: %v", r.name, err)
			}
		case <-markTicker.C:
			if err := r.MarkToMarket(ctx); err != nil {
				log.Printf("⚠️  [%s] Mark-to-market failed: %v", r.name, err)
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			// Mirror Stop: a runner whose context ended must not keep
			// reporting itself as running.
			r.mu.Lock()
			r.isRunning = false
			r.mu.Unlock()
			return
		}
	}
}

// RunCycle fetches a signal from the configured source and executes a
// full trade cycle. Paper mode only; live runners do not admit
// simulated orders.
func (r *Runner) RunCycle(ctx context.Context) error {
	if r.signals == nil {
		return fmt.Errorf("runner %s has no signal source configured", r.id)
	}
	payload, err := r.signals.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch signal: %w", err)
	}
	return r.RunCycleWithSignal(ctx, payload)
}

// RunCycleWithSignal executes one trade cycle with an explicit signal
// payload, e.g. pushed in over the API.
func (r *Runner) RunCycleWithSignal(ctx context.Context, signal any) error {
	if r.engine.Mode() == "live" {
		return fmt.Errorf("runner %s is in live mode, simulated cycles are disabled", r.id)
	}

	snapshot, err := r.market.Snapshot(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to fetch market data: %w", err)
	}

	result, err := r.engine.ExecuteSimulatedTrade(ctx, signal, snapshot)
	if err != nil {
		return err
	}

	for _, tr := range result.Trades {
		if msg := notify.FormatTrade(r.name, tr); msg != "" {
			r.notifier.Notify(msg)
		}
	}
	for symbol, reason := range result.Skipped {
		log.Printf("⚠️  [%s] Skipped %s: %s", r.name, symbol, reason)
	}

	log.Printf("✅ [%s] Cycle done: %d trade(s), account value %.2f", r.name, len(result.Trades), result.Portfolio.AccountValue)
	return nil
}

// MarkToMarket refreshes unrealized P&L on open positions without
// admitting any orders.
func (r *Runner) MarkToMarket(ctx context.Context) error {
	snapshot, err := r.market.Snapshot(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to fetch market data: %w", err)
	}
	_, err = r.engine.ValuePositions(ctx, snapshot)
	return err
}
