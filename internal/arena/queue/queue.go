// Package queue manages FIFO fighter intake for rumble formation.
package queue

import (
	"fmt"
	"sync"

	"github.com/ichorlabs/rumble/internal/arena/domain"
)

// Manager is a concurrency-safe FIFO of fighters waiting for a rumble.
type Manager struct {
	mu      sync.Mutex
	waiting []domain.Identity
	queued  map[domain.Identity]struct{}
}

// NewManager creates an empty queue.
func NewManager() *Manager {
	return &Manager{queued: make(map[domain.Identity]struct{})}
}

// Enqueue adds a fighter to the back of the queue. A fighter already waiting
// is rejected.
func (m *Manager) Enqueue(fighter domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queued[fighter]; ok {
		return fmt.Errorf("fighter %s is already queued", domain.HexIdentity(fighter))
	}
	m.queued[fighter] = struct{}{}
	m.waiting = append(m.waiting, fighter)
	return nil
}

// Take removes and returns the first count fighters, or nil when fewer are
// waiting. Formation is all-or-nothing so a partially drained queue never
// strands a too-small rumble.
func (m *Manager) Take(count int) []domain.Identity {
	if count <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.waiting) < count {
		return nil
	}
	taken := make([]domain.Identity, count)
	copy(taken, m.waiting[:count])
	m.waiting = append(m.waiting[:0], m.waiting[count:]...)
	for _, f := range taken {
		delete(m.queued, f)
	}
	return taken
}

// Len reports how many fighters are waiting.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}
