// Package ledgertest provides an in-memory ledger Client for tests.
package ledgertest

import (
	"context"
	"sync"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/ledger"
)

type turnKey struct {
	rumbleID uint64
	turn     uint32
}

// Fake is a scriptable in-memory ledger. The zero value is unusable; use New.
type Fake struct {
	mu          sync.Mutex
	slots       map[int]uint64
	rumbles     map[uint64]ledger.RumbleRecord
	combats     map[uint64]ledger.CombatRecord
	commitments map[turnKey][]ledger.Commitment
	now         time.Time

	// Err, when set, is returned by every method to simulate an outage.
	Err error
}

// New creates an empty fake with the clock at now.
func New(now time.Time) *Fake {
	return &Fake{
		slots:       make(map[int]uint64),
		rumbles:     make(map[uint64]ledger.RumbleRecord),
		combats:     make(map[uint64]ledger.CombatRecord),
		commitments: make(map[turnKey][]ledger.Commitment),
		now:         now,
	}
}

// SetRumble records a rumble and binds it to its slot.
func (f *Fake) SetRumble(rec ledger.RumbleRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rumbles[rec.ID] = rec
	f.slots[rec.SlotIndex] = rec.ID
}

// SetCombat records combat progress for a rumble.
func (f *Fake) SetCombat(rumbleID uint64, rec ledger.CombatRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.combats[rumbleID] = rec
}

// SetCommitments records revealed commitments for one turn.
func (f *Fake) SetCommitments(rumbleID uint64, turn uint32, cs []ledger.Commitment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitments[turnKey{rumbleID, turn}] = cs
}

// Advance moves the ledger clock forward.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *Fake) SlotRumble(_ context.Context, slotIndex int) (ledger.RumbleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return ledger.RumbleRecord{}, f.Err
	}
	id, ok := f.slots[slotIndex]
	if !ok {
		return ledger.RumbleRecord{}, ledger.ErrNotFound
	}
	return f.rumbles[id], nil
}

func (f *Fake) Rumble(_ context.Context, rumbleID uint64) (ledger.RumbleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return ledger.RumbleRecord{}, f.Err
	}
	rec, ok := f.rumbles[rumbleID]
	if !ok {
		return ledger.RumbleRecord{}, ledger.ErrNotFound
	}
	return rec, nil
}

func (f *Fake) Combat(_ context.Context, rumbleID uint64) (ledger.CombatRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return ledger.CombatRecord{}, f.Err
	}
	rec, ok := f.combats[rumbleID]
	if !ok {
		return ledger.CombatRecord{}, ledger.ErrNotFound
	}
	return rec, nil
}

func (f *Fake) Commitments(_ context.Context, rumbleID uint64, turn uint32) ([]ledger.Commitment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.commitments[turnKey{rumbleID, turn}], nil
}

func (f *Fake) Now(_ context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return time.Time{}, f.Err
	}
	return f.now, nil
}

var _ ledger.Client = (*Fake)(nil)
