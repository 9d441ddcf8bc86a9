package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnrealizedPnL(t *testing.T) {
	t.Parallel()

	long := Position{Symbol: "BTC", Side: SideLong, EntryPrice: 100, Notional: 1000}

	// Quantity derives from notional/entry: 10 units.
	assert.InDelta(t, 50, UnrealizedPnL(long, 105), 1e-9)
	assert.InDelta(t, -50, UnrealizedPnL(long, 95), 1e-9)
	assert.InDelta(t, 0, UnrealizedPnL(long, 100), 1e-9)

	short := Position{Symbol: "BTC", Side: SideShort, EntryPrice: 100, Notional: 1000}
	assert.InDelta(t, -50, UnrealizedPnL(short, 105), 1e-9)
	assert.InDelta(t, 50, UnrealizedPnL(short, 95), 1e-9)
}

func TestUnrealizedPnLIsPure(t *testing.T) {
	t.Parallel()

	pos := Position{Symbol: "ETH", Side: SideLong, EntryPrice: 2000, Notional: 1000}

	// Repeated valuation at the same price must not drift.
	first := UnrealizedPnL(pos, 2100)
	for i := 0; i < 10; i++ {
		assert.InDelta(t, first, UnrealizedPnL(pos, 2100), 1e-12)
	}
	assert.InDelta(t, 2000, pos.EntryPrice, 1e-12, "valuation must not mutate the position")
}

func TestUnrealizedPnLDefensiveZero(t *testing.T) {
	t.Parallel()

	assert.Zero(t, UnrealizedPnL(Position{Side: SideLong, EntryPrice: 0, Notional: 1000}, 100))
	assert.Zero(t, UnrealizedPnL(Position{Side: "UNKNOWN", EntryPrice: 100, Notional: 1000}, 105))
	assert.Zero(t, UnrealizedPnL(Position{Side: SideHold, EntryPrice: 100, Notional: 1000}, 105))
}
