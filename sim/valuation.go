package sim

// UnrealizedPnL computes the mark-to-market P&L of a position at the
// given price.
//
//	LONG:  (price - entry) * (notional / entry)
//	SHORT: (entry - price) * (notional / entry)
//
// Any other side yields 0. That branch is unreachable for positions the
// engine itself creates (it only ever writes LONG or SHORT), but a
// snapshot restored from storage is not trusted to be well-formed.
func UnrealizedPnL(pos Position, currentPrice float64) float64 {
	if pos.EntryPrice <= 0 {
		return 0
	}
	quantity := pos.Notional / pos.EntryPrice

	switch pos.Side {
	case SideLong:
		return (currentPrice - pos.EntryPrice) * quantity
	case SideShort:
		return (pos.EntryPrice - currentPrice) * quantity
	}
	return 0
}
