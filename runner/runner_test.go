package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simex/market"
	"simex/sim"
	"simex/store"
)

func newTestRunner(t *testing.T, mode string) *Runner {
	t.Helper()

	mem := store.NewMemory()
	engine, err := sim.NewEngine(sim.EngineConfig{
		Mode:           mode,
		Symbols:        []string{"BTC"},
		InitialBalance: 10000,
		Store:          mem,
	})
	require.NoError(t, err)

	r, err := New(Config{ID: "sim1"}, engine, market.NewClient([]string{"BTC"}), nil, nil)
	require.NoError(t, err)
	return r
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	engine, err := sim.NewEngine(sim.EngineConfig{
		Mode: "paper", Symbols: []string{"BTC"}, InitialBalance: 100, Store: mem,
	})
	require.NoError(t, err)
	mkt := market.NewClient([]string{"BTC"})

	_, err = New(Config{}, engine, mkt, nil, nil)
	assert.Error(t, err, "empty ID")

	_, err = New(Config{ID: "x"}, nil, mkt, nil, nil)
	assert.Error(t, err, "nil engine")

	_, err = New(Config{ID: "x"}, engine, nil, nil, nil)
	assert.Error(t, err, "nil market client")

	r, err := New(Config{ID: "x"}, engine, mkt, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", r.Name(), "name defaults to ID")
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	r := newTestRunner(t, "paper")

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start(context.Background()), "double start")

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop() // second stop is a no-op
}

func TestContextCancelClearsRunning(t *testing.T) {
	t.Parallel()
	r := newTestRunner(t, "paper")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))
	assert.True(t, r.IsRunning())

	cancel()
	assert.Eventually(t, func() bool { return !r.IsRunning() },
		time.Second, 10*time.Millisecond,
		"a runner whose context ended must not report itself running")
}

func TestRunCycleRequiresSignalSource(t *testing.T) {
	t.Parallel()
	r := newTestRunner(t, "paper")

	err := r.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signal source")
}

func TestLiveModeRejectsSimulatedCycles(t *testing.T) {
	t.Parallel()
	r := newTestRunner(t, "live")

	err := r.RunCycleWithSignal(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live mode")
}
