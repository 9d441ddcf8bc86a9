package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepExitsStopLoss(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	positions := []Position{
		{Symbol: "BTC", Side: SideLong, EntryPrice: 100, Notional: 1000, MarginUsed: 100, StopLoss: 95},
		{Symbol: "ETH", Side: SideShort, EntryPrice: 2000, Notional: 1000, MarginUsed: 100, StopLoss: 2100},
	}

	kept, trades, cashReleased, realized := sweepExits(positions, mapPrices{"BTC": 94, "ETH": 2100}, now)

	assert.Empty(t, kept)
	require.Len(t, trades, 2)
	for _, tr := range trades {
		assert.Equal(t, TradeClose, tr.Type)
		assert.Contains(t, tr.Reason, "Stop loss hit")
	}
	// BTC: (94-100)*10 = -60, ETH: (2000-2100)*0.5 = -50.
	assert.InDelta(t, -110, realized, 1e-9)
	assert.InDelta(t, 200-110, cashReleased, 1e-9)
}

func TestSweepExitsProfitTarget(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	positions := []Position{
		{Symbol: "BTC", Side: SideLong, EntryPrice: 100, Notional: 1000, MarginUsed: 100, ProfitTarget: 110},
		{Symbol: "ETH", Side: SideShort, EntryPrice: 2000, Notional: 1000, MarginUsed: 100, ProfitTarget: 1900},
	}

	kept, trades, cashReleased, realized := sweepExits(positions, mapPrices{"BTC": 110, "ETH": 1900}, now)

	assert.Empty(t, kept)
	require.Len(t, trades, 2)
	for _, tr := range trades {
		assert.Contains(t, tr.Reason, "Profit target hit")
	}
	// BTC: +100, ETH: +50.
	assert.InDelta(t, 150, realized, 1e-9)
	assert.InDelta(t, 350, cashReleased, 1e-9)
}

func TestSweepExitsStopLossWinsOverProfitTarget(t *testing.T) {
	t.Parallel()

	// Inverted levels make both triggers fire at once; the close must
	// be attributed to the stop.
	positions := []Position{
		{Symbol: "BTC", Side: SideLong, EntryPrice: 100, Notional: 1000, MarginUsed: 100, StopLoss: 100, ProfitTarget: 90},
	}

	_, trades, _, _ := sweepExits(positions, mapPrices{"BTC": 95}, time.Now().UTC())

	require.Len(t, trades, 1)
	assert.Contains(t, trades[0].Reason, "Stop loss hit")
}

func TestSweepExitsNoTriggerKeepsPosition(t *testing.T) {
	t.Parallel()

	positions := []Position{
		{Symbol: "BTC", Side: SideLong, EntryPrice: 100, Notional: 1000, MarginUsed: 100, StopLoss: 95, ProfitTarget: 110},
		{Symbol: "ETH", Side: SideLong, EntryPrice: 2000, Notional: 1000, MarginUsed: 100}, // no levels set
	}

	kept, trades, cashReleased, realized := sweepExits(positions, mapPrices{"BTC": 105, "ETH": 1}, time.Now().UTC())

	assert.Len(t, kept, 2)
	assert.Empty(t, trades)
	assert.Zero(t, cashReleased)
	assert.Zero(t, realized)
}

func TestSweepExitsUnpricedPositionUntouched(t *testing.T) {
	t.Parallel()

	positions := []Position{
		{Symbol: "BTC", Side: SideLong, EntryPrice: 100, Notional: 1000, MarginUsed: 100, StopLoss: 95},
	}

	kept, trades, _, _ := sweepExits(positions, mapPrices{}, time.Now().UTC())

	require.Len(t, kept, 1)
	assert.Empty(t, trades, "a position with no price this cycle cannot be closed")
}

func TestSweepExitsBoundaryInclusive(t *testing.T) {
	t.Parallel()

	positions := []Position{
		{Symbol: "BTC", Side: SideLong, EntryPrice: 100, Notional: 1000, MarginUsed: 100, StopLoss: 95},
	}

	// Exactly at the level triggers.
	_, trades, _, _ := sweepExits(positions, mapPrices{"BTC": 95}, time.Now().UTC())
	require.Len(t, trades, 1)
}
