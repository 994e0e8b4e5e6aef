// Package domain holds the arena's core types: rumbles, bets, leases and the
// monotonic rumble lifecycle.
package domain

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ichorlabs/rumble/internal/core/turn"
)

// Fighter-count bounds per rumble, from the authoritative ledger.
const (
	MinFighters = 2
	MaxFighters = 16
)

// Identity is a 32-byte on-chain identity (fighter or wallet).
type Identity = turn.Identity

// HexIdentity renders an identity as lowercase hex.
func HexIdentity(id Identity) string {
	return hex.EncodeToString(id[:])
}

// ParseIdentity parses a lowercase hex identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parse identity: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("parse identity: got %d bytes, want %d", len(raw), len(id))
	}
	copy(id[:], raw)
	return id, nil
}

// RumbleState is a rumble's lifecycle phase. States are totally ordered and
// a rumble never moves backward.
type RumbleState int

const (
	StateIdle RumbleState = iota
	StateBetting
	StateCombat
	StatePayout
	StateComplete
)

var stateNames = map[RumbleState]string{
	StateIdle:     "idle",
	StateBetting:  "betting",
	StateCombat:   "combat",
	StatePayout:   "payout",
	StateComplete: "complete",
}

// String returns the wire name of the state.
func (s RumbleState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseRumbleState parses a wire state name.
func ParseRumbleState(name string) (RumbleState, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return StateIdle, fmt.Errorf("unknown rumble state %q", name)
}

// MergeStates returns the more advanced of the two states. Reconciliation
// uses this to never regress a slot's progress.
func MergeStates(a, b RumbleState) RumbleState {
	if b > a {
		return b
	}
	return a
}

// Rumble is one battle-royale round. It is owned exclusively by the slot
// that hosts it and is immutable once complete.
type Rumble struct {
	ID          uint64
	SlotIndex   int
	State       RumbleState
	Combat      *turn.State
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	WinnerID    Identity
	Placements  []int // 1-based per fighter index, 0 = undetermined
	TurnLog     []turn.Result
}

// FighterIDs returns the rumble's fighter identities in index order.
func (r *Rumble) FighterIDs() []Identity {
	ids := make([]Identity, len(r.Combat.Fighters))
	for i := range r.Combat.Fighters {
		ids[i] = r.Combat.Fighters[i].Identity
	}
	return ids
}

// FighterIndex returns the index of the fighter with the given identity, or
// -1 when the fighter is not a combatant of this rumble.
func (r *Rumble) FighterIndex(id Identity) int {
	for i := range r.Combat.Fighters {
		if r.Combat.Fighters[i].Identity == id {
			return i
		}
	}
	return -1
}

// NewRumble forms a rumble in the betting state with canonical initial
// combat state for every fighter.
func NewRumble(id uint64, slotIndex int, fighters []Identity, now time.Time) (*Rumble, error) {
	if len(fighters) < MinFighters || len(fighters) > MaxFighters {
		return nil, fmt.Errorf("rumble needs %d..%d fighters, got %d", MinFighters, MaxFighters, len(fighters))
	}
	return &Rumble{
		ID:         id,
		SlotIndex:  slotIndex,
		State:      StateBetting,
		Combat:     turn.NewState(id, fighters),
		CreatedAt:  now,
		Placements: make([]int, len(fighters)),
	}, nil
}
