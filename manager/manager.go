package manager

import (
	"context"
	"fmt"
	"log"
	"sync"

	"simex/runner"
)

// Manager holds every configured simulator runner, keyed by ID.
type Manager struct {
	runners map[string]*runner.Runner
	order   []string // registration order, for stable listing
	mu      sync.RWMutex
}

// New creates an empty manager.
func New() *Manager {
	return &Manager{
		runners: make(map[string]*runner.Runner),
	}
}

// Add registers a runner. IDs must be unique.
func (m *Manager) Add(r *runner.Runner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runners[r.ID()]; exists {
		return fmt.Errorf("simulator ID '%s' already exists", r.ID())
	}
	m.runners[r.ID()] = r
	m.order = append(m.order, r.ID())
	log.Printf("✓ Simulator '%s' added", r.Name())
	return nil
}

// Get returns the runner with the given ID. An empty ID selects the
// sole runner when exactly one is registered.
func (m *Manager) Get(id string) (*runner.Runner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id == "" {
		if len(m.order) == 1 {
			return m.runners[m.order[0]], nil
		}
		return nil, fmt.Errorf("sim_id is required when multiple simulators are configured")
	}

	r, exists := m.runners[id]
	if !exists {
		return nil, fmt.Errorf("simulator ID '%s' does not exist", id)
	}
	return r, nil
}

// All returns the registered runners in registration order.
func (m *Manager) All() []*runner.Runner {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*runner.Runner, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.runners[id])
	}
	return out
}

// IDs returns the registered simulator IDs in registration order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids
}

// StartAll launches every runner's background loop.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log.Println("🚀 Starting all simulators...")
	for _, id := range m.order {
		if err := m.runners[id].Start(ctx); err != nil {
			log.Printf("❌ Failed to start simulator '%s': %v", id, err)
		}
	}
}

// StopAll stops every runner.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log.Println("⏹  Stopping all simulators...")
	for _, id := range m.order {
		m.runners[id].Stop()
	}
}
