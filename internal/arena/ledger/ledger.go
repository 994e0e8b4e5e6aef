// Package ledger reads authoritative rumble state from the settlement chain's
// indexer API. The ledger is the source of truth; everything read here wins
// over locally cached state during reconciliation.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/core/combat"
)

// ErrNotFound indicates the ledger has no record for the query.
var ErrNotFound = errors.New("ledger record not found")

// RumbleRecord is a rumble as the ledger sees it.
type RumbleRecord struct {
	ID            uint64
	SlotIndex     int
	State         domain.RumbleState
	Fighters      []domain.Identity
	BettingEndsAt time.Time
	WinnerID      domain.Identity
}

// CombatRecord is the ledger's view of combat progress, indexed by fighter
// position within the rumble. Turn counts resolved turns. Rank is the
// elimination ordinal, zero for fighters still standing.
type CombatRecord struct {
	Turn        uint32
	HP          []int
	Meter       []int
	Rank        []int
	DamageDealt []int
	DamageTaken []int
}

// Commitment is one fighter's revealed move for one turn. Fighters without a
// revealed commitment fall back to derived moves.
type Commitment struct {
	Fighter domain.Identity
	Turn    uint32
	Move    combat.Move
}

// Client reads authoritative state. All methods return ErrNotFound when the
// queried record does not exist, and wrap transport failures so callers can
// distinguish "absent" from "unreachable".
type Client interface {
	// SlotRumble returns the rumble currently hosted by a slot.
	SlotRumble(ctx context.Context, slotIndex int) (RumbleRecord, error)
	// Rumble returns a rumble by id.
	Rumble(ctx context.Context, rumbleID uint64) (RumbleRecord, error)
	// Combat returns combat progress for a rumble.
	Combat(ctx context.Context, rumbleID uint64) (CombatRecord, error)
	// Commitments returns the revealed move commitments for one turn.
	Commitments(ctx context.Context, rumbleID uint64, turn uint32) ([]Commitment, error)
	// Now returns the ledger clock. Deadlines are always evaluated against
	// this clock, never against local wall time.
	Now(ctx context.Context) (time.Time, error)
}
