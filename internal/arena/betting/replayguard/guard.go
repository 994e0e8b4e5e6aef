// Package replayguard enforces single use of wager evidence.
//
// The durable store is authoritative. The in-memory set exists only for
// degraded operation while the durable store is unreachable; recording
// memory-only is a known consistency gap that the guard surfaces through
// its Degraded counter rather than hiding.
package replayguard

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ichorlabs/rumble/internal/arena/storage"
)

// Guard decides whether a piece of wager evidence has been consumed before.
type Guard interface {
	// MarkUsed records the evidence and returns true when it was already
	// consumed, regardless of which wallet presented it.
	MarkUsed(ctx context.Context, evidence string) (alreadyUsed bool, err error)
}

// Memory is the in-process evidence set.
type Memory struct {
	mu   sync.Mutex
	used map[string]struct{}
}

// NewMemory creates an empty in-memory guard.
func NewMemory() *Memory {
	return &Memory{used: make(map[string]struct{})}
}

// MarkUsed implements Guard. It never fails.
func (m *Memory) MarkUsed(_ context.Context, evidence string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.used[evidence]; ok {
		return true, nil
	}
	m.used[evidence] = struct{}{}
	return false, nil
}

// Contains reports whether the evidence is recorded in memory.
func (m *Memory) Contains(evidence string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.used[evidence]
	return ok
}

// Fallback composes the durable store with the in-memory set. Evidence
// recorded in either layer rejects the caller; inserts go to the durable
// layer first and fall back to memory-only recording when the durable write
// itself fails.
type Fallback struct {
	durable  storage.EvidenceStore
	memory   *Memory
	degraded atomic.Int64
	logf     func(format string, args ...any)
}

// NewFallback composes the two guard layers.
func NewFallback(durable storage.EvidenceStore, memory *Memory) *Fallback {
	if memory == nil {
		memory = NewMemory()
	}
	return &Fallback{durable: durable, memory: memory, logf: log.Printf}
}

// MarkUsed implements Guard.
func (f *Fallback) MarkUsed(ctx context.Context, evidence string) (bool, error) {
	if f.memory.Contains(evidence) {
		return true, nil
	}

	already, err := f.durable.MarkUsed(ctx, evidence)
	if err == nil {
		return already, nil
	}

	f.degraded.Add(1)
	f.logf("replay guard degraded: durable write failed, recording evidence in memory only: %v", err)
	return f.memory.MarkUsed(ctx, evidence)
}

// Degraded reports how many times the guard fell back to memory-only
// recording since startup.
func (f *Fallback) Degraded() int64 {
	return f.degraded.Load()
}
