package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simex/market"
	"simex/runner"
	"simex/sim"
	"simex/store"
)

func newTestRunner(t *testing.T, id string) *runner.Runner {
	t.Helper()

	mem := store.NewMemory()
	engine, err := sim.NewEngine(sim.EngineConfig{
		Mode:           "paper",
		Symbols:        []string{"BTC"},
		InitialBalance: 10000,
		Store:          mem,
	})
	require.NoError(t, err)

	r, err := runner.New(runner.Config{ID: id}, engine, market.NewClient([]string{"BTC"}), nil, nil)
	require.NoError(t, err)
	return r
}

func TestAddAndGet(t *testing.T) {
	t.Parallel()
	m := New()

	require.NoError(t, m.Add(newTestRunner(t, "a")))

	got, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID())

	_, err = m.Get("missing")
	assert.Error(t, err)
}

func TestAddRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	m := New()

	require.NoError(t, m.Add(newTestRunner(t, "a")))
	assert.Error(t, m.Add(newTestRunner(t, "a")))
}

func TestGetWithEmptyID(t *testing.T) {
	t.Parallel()
	m := New()

	// No simulators yet.
	_, err := m.Get("")
	assert.Error(t, err)

	// Exactly one: the empty ID selects it.
	require.NoError(t, m.Add(newTestRunner(t, "only")))
	got, err := m.Get("")
	require.NoError(t, err)
	assert.Equal(t, "only", got.ID())

	// Two simulators make the empty ID ambiguous.
	require.NoError(t, m.Add(newTestRunner(t, "second")))
	_, err = m.Get("")
	assert.Error(t, err)
}

func TestAllPreservesRegistrationOrder(t *testing.T) {
	t.Parallel()
	m := New()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, m.Add(newTestRunner(t, id)))
	}

	all := m.All()
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID())
	assert.Equal(t, "a", all[1].ID())
	assert.Equal(t, "b", all[2].ID())
	assert.Equal(t, []string{"c", "a", "b"}, m.IDs())
}
