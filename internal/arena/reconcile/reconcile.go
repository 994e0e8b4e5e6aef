// Package reconcile merges locally cached rumble state with the
// authoritative ledger. The merge is pure: the caller decides what to do
// with the result.
package reconcile

import (
	"fmt"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/ledger"
)

// Merge reconciles a cached rumble with the ledger's record of the same
// rumble. The returned state is the more advanced of the two views: a slot's
// progress never regresses, even when the ledger read is stale. A nil local
// rumble adopts the ledger record wholesale, which is how a restarted
// replica repopulates its cache.
func Merge(local *domain.Rumble, rec ledger.RumbleRecord, now time.Time) (*domain.Rumble, bool, error) {
	if local == nil {
		adopted, err := fromRecord(rec, now)
		return adopted, adopted != nil, err
	}
	if local.ID != rec.ID {
		// A different rumble in the slot means the ledger recycled it; the
		// caller archives the local one and adopts the new record.
		adopted, err := fromRecord(rec, now)
		return adopted, true, err
	}

	merged := *local
	changed := false

	if next := domain.MergeStates(local.State, rec.State); next != local.State {
		merged.State = next
		changed = true
	}
	if rec.WinnerID != (domain.Identity{}) && local.WinnerID != rec.WinnerID {
		merged.WinnerID = rec.WinnerID
		changed = true
	}
	if !changed {
		return local, false, nil
	}
	return &merged, true, nil
}

func fromRecord(rec ledger.RumbleRecord, now time.Time) (*domain.Rumble, error) {
	r, err := domain.NewRumble(rec.ID, rec.SlotIndex, rec.Fighters, now)
	if err != nil {
		return nil, err
	}
	r.State = domain.MergeStates(r.State, rec.State)
	r.WinnerID = rec.WinnerID
	return r, nil
}

// ApplyCombat overwrites a rumble's combat bookkeeping with the ledger's
// authoritative record. The record indexes fighters by their position within
// the rumble, and its Turn counts resolved turns, so the engine resumes at
// Turn+1. For rumbles at or past payout the placements and winner are
// re-derived from the restored ranks; settling against the canonical initial
// state would treat every fighter as unplaced. The record is validated
// before anything is written, so a malformed record leaves the rumble
// untouched.
func ApplyCombat(r *domain.Rumble, rec ledger.CombatRecord) error {
	n := len(r.Combat.Fighters)
	for _, arr := range [][]int{rec.HP, rec.Meter, rec.Rank, rec.DamageDealt, rec.DamageTaken} {
		if len(arr) != n {
			return fmt.Errorf("combat record covers %d fighters, rumble %d has %d", len(arr), r.ID, n)
		}
	}

	eliminated := 0
	for i := range r.Combat.Fighters {
		f := &r.Combat.Fighters[i]
		f.HP = rec.HP[i]
		f.Meter = rec.Meter[i]
		f.Rank = rec.Rank[i]
		f.DamageDealt = rec.DamageDealt[i]
		f.DamageTaken = rec.DamageTaken[i]
		if f.Rank > 0 {
			eliminated++
		}
	}
	r.Combat.Eliminated = eliminated
	r.Combat.Turn = rec.Turn + 1

	if r.State >= domain.StatePayout {
		r.Placements = r.Combat.Placements()
		if r.WinnerID == (domain.Identity{}) {
			for i, p := range r.Placements {
				if p == 1 {
					r.WinnerID = r.Combat.Fighters[i].Identity
					break
				}
			}
		}
	}
	return nil
}

// BettingRemaining evaluates the betting deadline against the ledger clock,
// never against local wall time. A non-positive result means betting closed.
func BettingRemaining(rec ledger.RumbleRecord, ledgerNow time.Time) time.Duration {
	return rec.BettingEndsAt.Sub(ledgerNow)
}
