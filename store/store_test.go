package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simex/sim"
)

func samplePortfolio() *sim.Portfolio {
	return &sim.Portfolio{
		AccountValue:  10050,
		AvailableCash: 9950,
		TotalReturn:   50,
		Positions: []sim.Position{
			{
				Symbol:     "BTC",
				Side:       sim.SideLong,
				EntryPrice: 50000,
				Quantity:   0.02,
				Notional:   1000,
				Leverage:   10,
				MarginUsed: 100,
				StopLoss:   45000,
				OpenedAt:   time.Now().UTC().Truncate(time.Second),
			},
		},
		LastUpdated: time.Now().UTC().Truncate(time.Second),
	}
}

func TestMemoryPortfolioRoundTrip(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetPortfolio(ctx, "paper")
	assert.ErrorIs(t, err, sim.ErrNoPortfolio)

	p := samplePortfolio()
	require.NoError(t, m.PutPortfolio(ctx, "paper", p))

	got, err := m.GetPortfolio(ctx, "paper")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	// Modes are isolated documents.
	_, err = m.GetPortfolio(ctx, "live")
	assert.ErrorIs(t, err, sim.ErrNoPortfolio)

	// Stored snapshot is a copy, not an alias.
	got.Positions[0].Symbol = "MUTATED"
	again, err := m.GetPortfolio(ctx, "paper")
	require.NoError(t, err)
	assert.Equal(t, "BTC", again.Positions[0].Symbol)
}

func TestMemoryRecentTrades(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	for _, sym := range []string{"BTC", "ETH", "SOL"} {
		require.NoError(t, m.AppendTrade(ctx, "paper", sim.TradeRecord{
			Type:      sim.TradeOpen,
			Symbol:    sym,
			Side:      sim.SideLong,
			Timestamp: time.Now().UTC(),
		}))
	}

	trades, err := m.RecentTrades(ctx, "paper", 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "SOL", trades[0].Symbol, "newest first")
	assert.Equal(t, "ETH", trades[1].Symbol)

	all, err := m.RecentTrades(ctx, "paper", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	empty, err := m.RecentTrades(ctx, "live", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLitePortfolioRoundTrip(t *testing.T) {
	t.Parallel()

	db, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	_, err = db.GetPortfolio(ctx, "paper")
	assert.ErrorIs(t, err, sim.ErrNoPortfolio)

	p := samplePortfolio()
	require.NoError(t, db.PutPortfolio(ctx, "paper", p))

	got, err := db.GetPortfolio(ctx, "paper")
	require.NoError(t, err)
	assert.InDelta(t, p.AccountValue, got.AccountValue, 1e-9)
	assert.InDelta(t, p.AvailableCash, got.AvailableCash, 1e-9)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, "BTC", got.Positions[0].Symbol)
	assert.InDelta(t, 45000, got.Positions[0].StopLoss, 1e-9)

	// Upsert replaces the whole document.
	p.AvailableCash = 1234
	p.Positions = nil
	require.NoError(t, db.PutPortfolio(ctx, "paper", p))

	got, err = db.GetPortfolio(ctx, "paper")
	require.NoError(t, err)
	assert.InDelta(t, 1234, got.AvailableCash, 1e-9)
	assert.Empty(t, got.Positions)
}

func TestSQLiteTradeLedger(t *testing.T) {
	t.Parallel()

	db, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, db.AppendTrade(ctx, "paper", sim.TradeRecord{
		Type:       sim.TradeOpen,
		Symbol:     "BTC",
		Side:       sim.SideLong,
		EntryPrice: 50000,
		Notional:   1000,
		Leverage:   10,
		Timestamp:  now,
	}))
	require.NoError(t, db.AppendTrade(ctx, "paper", sim.TradeRecord{
		Type:       sim.TradeClose,
		Symbol:     "BTC",
		Side:       sim.SideLong,
		EntryPrice: 50000,
		ExitPrice:  51000,
		PnL:        20,
		Reason:     "Profit target hit at $51000",
		Timestamp:  now,
	}))
	require.NoError(t, db.AppendTrade(ctx, "live", sim.TradeRecord{
		Type:      sim.TradeOpen,
		Symbol:    "ETH",
		Side:      sim.SideShort,
		Timestamp: now,
	}))

	trades, err := db.RecentTrades(ctx, "paper", 10)
	require.NoError(t, err)
	require.Len(t, trades, 2, "ledger is partitioned by mode")

	assert.Equal(t, sim.TradeClose, trades[0].Type, "newest first")
	assert.InDelta(t, 20, trades[0].PnL, 1e-9)
	assert.Equal(t, "Profit target hit at $51000", trades[0].Reason)
	assert.Equal(t, sim.TradeOpen, trades[1].Type)

	limited, err := db.RecentTrades(ctx, "paper", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, sim.TradeClose, limited[0].Type)
}

func TestSQLiteDefaultPathInTempDir(t *testing.T) {
	t.Parallel()

	// Nested directories are created on demand.
	path := filepath.Join(t.TempDir(), "data", "nested", "sim.db")
	db, err := Open(Config{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
