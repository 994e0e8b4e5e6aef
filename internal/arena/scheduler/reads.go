package scheduler

import (
	"fmt"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/betting"
	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/payout"
	"github.com/ichorlabs/rumble/internal/core/turn"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

// SlotStatus is one slot's cached lifecycle view.
type SlotStatus struct {
	Index           int       `json:"index"`
	State           string    `json:"state"`
	RumbleID        uint64    `json:"rumble_id,omitempty"`
	BettingDeadline time.Time `json:"betting_deadline,omitempty"`
	Turn            uint32    `json:"turn,omitempty"`
	AliveCount      int       `json:"alive_count,omitempty"`
}

// BettingInfo is the live market view of one betting-phase slot.
type BettingInfo struct {
	Odds            []betting.Odds `json:"odds"`
	TotalPool       uint64         `json:"total_pool"`
	BettingOpen     bool           `json:"betting_open"`
	BettingDeadline time.Time      `json:"betting_deadline"`
}

// Status reports every slot. It serves from the cache and never touches I/O.
func (o *Orchestrator) Status() []SlotStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]SlotStatus, len(o.slots))
	for i, s := range o.slots {
		status := SlotStatus{Index: s.index, State: domain.StateIdle.String()}
		if s.rumble != nil {
			status.State = s.rumble.State.String()
			status.RumbleID = s.rumble.ID
			status.BettingDeadline = s.bettingDeadline
			status.Turn = s.rumble.Combat.Turn
			status.AliveCount = len(s.rumble.Combat.Fighters) - s.rumble.Combat.Eliminated
		}
		out[i] = status
	}
	return out
}

// Odds returns the market view for one slot.
func (o *Orchestrator) Odds(slotIndex int) (BettingInfo, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if slotIndex < 0 || slotIndex >= len(o.slots) {
		return BettingInfo{}, apperrors.New(apperrors.CodeBetSlotInvalid,
			fmt.Sprintf("slot %d does not exist", slotIndex))
	}
	s := o.slots[slotIndex]
	if s.rumble == nil || s.pool == nil {
		return BettingInfo{}, apperrors.New(apperrors.CodeRumbleNotFound,
			fmt.Sprintf("slot %d hosts no rumble", slotIndex))
	}

	open := s.rumble.State == domain.StateBetting && o.clock().UTC().Before(s.bettingDeadline)
	return BettingInfo{
		Odds:            s.pool.Odds(),
		TotalPool:       s.pool.Total(),
		BettingOpen:     open,
		BettingDeadline: s.bettingDeadline,
	}, nil
}

// CombatState returns a deep copy of a slot's combat state so callers can
// never mutate the cache.
func (o *Orchestrator) CombatState(slotIndex int) (*turn.State, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if slotIndex < 0 || slotIndex >= len(o.slots) {
		return nil, apperrors.New(apperrors.CodeBetSlotInvalid,
			fmt.Sprintf("slot %d does not exist", slotIndex))
	}
	s := o.slots[slotIndex]
	if s.rumble == nil {
		return nil, apperrors.New(apperrors.CodeRumbleNotFound,
			fmt.Sprintf("slot %d hosts no rumble", slotIndex))
	}

	combat := *s.rumble.Combat
	combat.Fighters = make([]turn.Fighter, len(s.rumble.Combat.Fighters))
	copy(combat.Fighters, s.rumble.Combat.Fighters)
	return &combat, nil
}

// PayoutResult returns a settled rumble's cached settlement.
func (o *Orchestrator) PayoutResult(rumbleID uint64) (*payout.Settlement, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	settlement, ok := o.settlements[rumbleID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeRumbleNotFound,
			fmt.Sprintf("no settlement cached for rumble %d", rumbleID))
	}
	return settlement, nil
}

// LastTick reports when the last fully successful tick finished. The zero
// time means no tick has succeeded yet.
func (o *Orchestrator) LastTick() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastTick
}
