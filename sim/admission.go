package sim

import "fmt"

const defaultLeverage = 10

// cycleState is the working state one cycle threads through the exit
// sweep and the per-symbol admission steps. Intents are applied
// sequentially, so later symbols see the cash and positions left behind
// by earlier ones.
type cycleState struct {
	cash      float64
	positions []Position
	trades    []TradeRecord
	realized  float64
	skipped   map[string]string
}

func (st *cycleState) skip(symbol, reason string) {
	st.skipped[symbol] = reason
}

func (st *cycleState) findPosition(symbol string) int {
	for i := range st.positions {
		if st.positions[i].Symbol == symbol {
			return i
		}
	}
	return -1
}

// applyIntent admits one symbol's intent against the current working
// state: open, resize, flip or reject. Every branch checks affordability
// before committing, so available cash can never go negative here.
func (e *Engine) applyIntent(st *cycleState, intent TradeIntent, price float64) {
	leverage := intent.Leverage
	if leverage <= 0 {
		leverage = defaultLeverage
	}
	marginRequired := intent.Notional / leverage

	// Hard admission gate: no partial fills.
	if marginRequired > st.cash {
		st.skip(intent.Symbol, fmt.Sprintf("insufficient margin: need %.2f, available %.2f", marginRequired, st.cash))
		return
	}

	idx := st.findPosition(intent.Symbol)
	if idx < 0 {
		e.openPosition(st, intent, price, leverage, marginRequired)
		return
	}

	existing := st.positions[idx]
	if existing.Side != intent.Side {
		e.flipPosition(st, idx, intent, price, leverage, marginRequired)
		return
	}

	e.resizePosition(st, idx, intent, price, leverage, marginRequired)
}

// openPosition debits the margin and creates a fresh position at the
// current price.
func (e *Engine) openPosition(st *cycleState, intent TradeIntent, price, leverage, marginRequired float64) {
	st.cash -= marginRequired

	st.positions = append(st.positions, Position{
		Symbol:       intent.Symbol,
		Side:         intent.Side,
		EntryPrice:   price,
		Quantity:     intent.Notional / price,
		Notional:     intent.Notional,
		Leverage:     leverage,
		MarginUsed:   marginRequired,
		ProfitTarget: intent.ProfitTarget,
		StopLoss:     intent.StopLoss,
		OpenedAt:     e.now(),
		LastUpdated:  e.now(),
	})

	st.trades = append(st.trades, TradeRecord{
		Type:       TradeOpen,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		EntryPrice: price,
		Notional:   intent.Notional,
		Leverage:   leverage,
		Timestamp:  e.now(),
	})
}

// flipPosition realizes the existing opposite-side position exactly as a
// close, then opens a fresh one from the same intent. Two records are
// written: CLOSE then OPEN.
func (e *Engine) flipPosition(st *cycleState, idx int, intent TradeIntent, price, leverage, marginRequired float64) {
	existing := st.positions[idx]

	closePnL := UnrealizedPnL(existing, price)
	st.realized += closePnL
	st.cash += existing.MarginUsed + closePnL

	st.trades = append(st.trades, TradeRecord{
		Type:       TradeClose,
		Symbol:     existing.Symbol,
		Side:       existing.Side,
		EntryPrice: existing.EntryPrice,
		ExitPrice:  price,
		PnL:        closePnL,
		Timestamp:  e.now(),
	})

	st.positions = append(st.positions[:idx], st.positions[idx+1:]...)

	// A close that realizes a loss larger than the released margin can
	// shrink cash below the level the admission gate saw, so the open
	// half of the flip re-checks affordability.
	if marginRequired > st.cash {
		st.skip(intent.Symbol, fmt.Sprintf("insufficient margin after flip close: need %.2f, available %.2f", marginRequired, st.cash))
		return
	}

	e.openPosition(st, intent, price, leverage, marginRequired)
}

// resizePosition adjusts a same-side position in place: margin delta is
// settled against cash, trigger levels are replaced, and the entry price
// becomes the plain average of the old entry and the current price.
// No CLOSE/OPEN pair is generated.
func (e *Engine) resizePosition(st *cycleState, idx int, intent TradeIntent, price, leverage, newMarginRequired float64) {
	existing := &st.positions[idx]

	marginDiff := newMarginRequired - existing.MarginUsed
	if marginDiff > 0 && marginDiff > st.cash {
		st.skip(intent.Symbol, fmt.Sprintf("insufficient margin to resize: need %.2f more, available %.2f", marginDiff, st.cash))
		return
	}

	st.cash -= marginDiff

	// Two-point average, not volume-weighted. Kept for ledger
	// compatibility with historical records.
	existing.EntryPrice = (existing.EntryPrice + price) / 2
	existing.Notional = intent.Notional
	existing.Quantity = intent.Notional / existing.EntryPrice
	existing.Leverage = leverage
	existing.MarginUsed = newMarginRequired
	existing.ProfitTarget = intent.ProfitTarget
	existing.StopLoss = intent.StopLoss
	existing.LastUpdated = e.now()

	st.trades = append(st.trades, TradeRecord{
		Type:      TradeUpdate,
		Symbol:    intent.Symbol,
		Side:      intent.Side,
		Notional:  intent.Notional,
		Leverage:  leverage,
		Timestamp: e.now(),
	})
}
