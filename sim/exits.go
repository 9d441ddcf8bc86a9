package sim

import (
	"fmt"
	"time"
)

// sweepExits checks every open position against its stop-loss and
// profit-target levels and closes the ones that trigger. It runs before
// any new intent is admitted, so a position can be closed by its own
// trigger and re-opened by a fresh intent within the same cycle.
//
// Stop-loss is evaluated first; if both conditions are simultaneously
// true the close is recorded as a stop-loss.
//
// Returns the surviving positions, the CLOSE records, the cash released
// back to the portfolio (margin + realized P&L) and the realized P&L.
func sweepExits(positions []Position, prices PriceSource, now time.Time) (kept []Position, trades []TradeRecord, cashReleased, realizedPnL float64) {
	kept = make([]Position, 0, len(positions))

	for _, pos := range positions {
		price, ok := prices.Price(pos.Symbol)
		if !ok {
			// No data this cycle, leave the position alone.
			kept = append(kept, pos)
			continue
		}

		reason := exitReason(pos, price)
		if reason == "" {
			kept = append(kept, pos)
			continue
		}

		closePnL := UnrealizedPnL(pos, price)
		cashReleased += pos.MarginUsed + closePnL
		realizedPnL += closePnL

		trades = append(trades, TradeRecord{
			Type:       TradeClose,
			Symbol:     pos.Symbol,
			Side:       pos.Side,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  price,
			PnL:        closePnL,
			Reason:     reason,
			Timestamp:  now,
		})
	}

	return kept, trades, cashReleased, realizedPnL
}

// exitReason returns the close reason if a trigger fires, else "".
func exitReason(pos Position, price float64) string {
	if pos.StopLoss > 0 {
		if pos.Side == SideLong && price <= pos.StopLoss {
			return fmt.Sprintf("Stop loss hit at $%v", pos.StopLoss)
		}
		if pos.Side == SideShort && price >= pos.StopLoss {
			return fmt.Sprintf("Stop loss hit at $%v", pos.StopLoss)
		}
	}

	if pos.ProfitTarget > 0 {
		if pos.Side == SideLong && price >= pos.ProfitTarget {
			return fmt.Sprintf("Profit target hit at $%v", pos.ProfitTarget)
		}
		if pos.Side == SideShort && price <= pos.ProfitTarget {
			return fmt.Sprintf("Profit target hit at $%v", pos.ProfitTarget)
		}
	}

	return ""
}
