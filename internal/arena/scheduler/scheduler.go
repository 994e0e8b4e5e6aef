// Package scheduler owns the arena's fixed slots and drives every hosted
// rumble through its lifecycle, one tick at a time.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ichorlabs/rumble/internal/arena/betting"
	"github.com/ichorlabs/rumble/internal/arena/betting/replayguard"
	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/event"
	"github.com/ichorlabs/rumble/internal/arena/ledger"
	"github.com/ichorlabs/rumble/internal/arena/payout"
	"github.com/ichorlabs/rumble/internal/arena/queue"
	"github.com/ichorlabs/rumble/internal/arena/reconcile"
	"github.com/ichorlabs/rumble/internal/arena/storage"
	"github.com/ichorlabs/rumble/internal/core/turn"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

// Defaults for slot configuration.
const (
	DefaultSlots         = 3
	DefaultFighterCount  = 16
	DefaultBettingWindow = 90 * time.Second
)

// settlementCacheSize bounds how many recent settlements stay readable after
// their slot recycles.
const settlementCacheSize = 64

// CommitmentSource returns the revealed move commitments for one turn. A nil
// source means every fighter plays the deterministic fallback move.
type CommitmentSource func(ctx context.Context, rumbleID uint64, turnNumber uint32) (map[turn.Identity]turn.Commitment, error)

// LedgerCommitments adapts a ledger client into a CommitmentSource.
func LedgerCommitments(client ledger.Client) CommitmentSource {
	return func(ctx context.Context, rumbleID uint64, turnNumber uint32) (map[turn.Identity]turn.Commitment, error) {
		revealed, err := client.Commitments(ctx, rumbleID, turnNumber)
		if err != nil {
			return nil, err
		}
		out := make(map[turn.Identity]turn.Commitment, len(revealed))
		for _, c := range revealed {
			out[c.Fighter] = turn.Commitment{Move: c.Move, Revealed: true}
		}
		return out, nil
	}
}

// Config tunes the orchestrator.
type Config struct {
	Slots         int
	FighterCount  int
	BettingWindow time.Duration
	MinBet        uint64
	MaxBet        uint64
}

func (c Config) withDefaults() Config {
	if c.Slots <= 0 {
		c.Slots = DefaultSlots
	}
	if c.FighterCount <= 0 {
		c.FighterCount = DefaultFighterCount
	}
	if c.BettingWindow <= 0 {
		c.BettingWindow = DefaultBettingWindow
	}
	if c.MinBet == 0 {
		c.MinBet = betting.DefaultMinBet
	}
	if c.MaxBet == 0 {
		c.MaxBet = betting.DefaultMaxBet
	}
	return c
}

// slot is one scheduling lane.
type slot struct {
	index int

	// mu serializes this slot's lifecycle transitions, recovery and bet
	// admission. Slow work (ledger reads, durable-store writes) runs under
	// mu alone; the orchestrator's cache lock is taken only around the
	// in-memory mutations the read APIs observe, so reads never wait on
	// I/O.
	mu sync.Mutex

	rumble          *domain.Rumble
	pool            *betting.Pool
	bettingDeadline time.Time
	settled         bool
}

// Orchestrator owns the slots and the in-memory cache the read APIs serve
// from. Request handlers never mutate slot state directly; every transition
// happens inside Tick or Recover, and bet admission happens inside PlaceBet.
type Orchestrator struct {
	cfg         Config
	queue       *queue.Manager
	store       storage.Store
	guard       replayguard.Guard
	hub         *event.Hub
	engine      *payout.Engine
	commitments CommitmentSource

	clock       func() time.Time
	newRumbleID func() uint64
	tracer      trace.Tracer

	// mu guards the cached slot fields, the settlement cache and lastTick
	// for the read APIs. Writers hold it only for in-memory mutation,
	// never across I/O. The slots slice itself is fixed at construction.
	mu          sync.RWMutex
	slots       []*slot
	settlements map[uint64]*payout.Settlement
	settledIDs  []uint64
	lastTick    time.Time
}

// New creates an orchestrator with empty idle slots.
func New(cfg Config, q *queue.Manager, store storage.Store, guard replayguard.Guard, hub *event.Hub, commitments CommitmentSource) *Orchestrator {
	cfg = cfg.withDefaults()
	slots := make([]*slot, cfg.Slots)
	for i := range slots {
		slots[i] = &slot{index: i}
	}
	return &Orchestrator{
		cfg:         cfg,
		queue:       q,
		store:       store,
		guard:       guard,
		hub:         hub,
		engine:      payout.NewEngine(store, hub),
		commitments: commitments,
		clock:       time.Now,
		newRumbleID: randomRumbleID,
		tracer:      otel.Tracer("arena/scheduler"),
		slots:       slots,
		settlements: make(map[uint64]*payout.Settlement),
	}
}

// randomRumbleID draws a non-zero random rumble id.
func randomRumbleID() uint64 {
	var buf [8]byte
	for {
		rand.Read(buf[:])
		if id := binary.LittleEndian.Uint64(buf[:]); id != 0 {
			return id
		}
	}
}

// Tick advances every slot's state machine once. A failure in one slot is
// logged and isolated; the remaining slots still advance.
func (o *Orchestrator) Tick(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	var firstErr error
	for _, s := range o.slots {
		if err := o.advanceSlot(ctx, s); err != nil {
			log.Printf("[ARENA] slot %d advance failed: %v", s.index, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("slot %d: %w", s.index, err)
			}
		}
	}
	if firstErr == nil {
		o.mu.Lock()
		o.lastTick = o.clock().UTC()
		o.mu.Unlock()
	}
	span.SetAttributes(attribute.Bool("tick.ok", firstErr == nil))
	return firstErr
}

func (o *Orchestrator) advanceSlot(ctx context.Context, s *slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := o.clock().UTC()
	switch {
	case s.rumble == nil:
		return o.formRumble(s, now)
	case s.rumble.State == domain.StateBetting:
		if !now.Before(s.bettingDeadline) {
			o.closeBetting(s)
		}
		return nil
	case s.rumble.State == domain.StateCombat:
		return o.advanceCombat(ctx, s)
	case s.rumble.State == domain.StatePayout:
		return o.settleAndRecycle(ctx, s, now)
	case s.rumble.State == domain.StateComplete:
		// Adopted from the ledger already settled; nothing left to pay out.
		o.mu.Lock()
		o.recycleSlot(s)
		o.mu.Unlock()
		return nil
	}
	return nil
}

// formRumble drains the queue into a new betting-phase rumble when enough
// fighters are waiting. Caller holds the slot lock.
func (o *Orchestrator) formRumble(s *slot, now time.Time) error {
	fighters := o.queue.Take(o.cfg.FighterCount)
	if fighters == nil {
		return nil
	}

	r, err := domain.NewRumble(o.newRumbleID(), s.index, fighters, now)
	if err != nil {
		return fmt.Errorf("form rumble: %w", err)
	}

	o.mu.Lock()
	s.rumble = r
	s.pool = betting.NewPool(r.ID, fighters)
	s.bettingDeadline = now.Add(o.cfg.BettingWindow)
	s.settled = false
	o.mu.Unlock()

	o.hub.Publish(event.Event{
		Kind:      event.KindBettingOpen,
		SlotIndex: s.index,
		RumbleID:  r.ID,
		Payload: map[string]any{
			"fighters": hexIdentities(fighters),
			"deadline": s.bettingDeadline,
		},
	})
	return nil
}

// closeBetting snapshots final odds and opens combat. Caller holds the slot
// lock.
func (o *Orchestrator) closeBetting(s *slot) {
	o.mu.Lock()
	s.rumble.State = domain.StateCombat
	s.rumble.StartedAt = o.clock().UTC()
	o.mu.Unlock()

	o.hub.Publish(event.Event{
		Kind:      event.KindBettingClosed,
		SlotIndex: s.index,
		RumbleID:  s.rumble.ID,
		Payload:   map[string]any{"final_odds": s.pool.Odds(), "total_pool": s.pool.Total()},
	})
	o.hub.Publish(event.Event{
		Kind:      event.KindCombatStarted,
		SlotIndex: s.index,
		RumbleID:  s.rumble.ID,
		Payload:   map[string]any{"fighters": hexIdentities(s.rumble.FighterIDs())},
	})
}

// advanceCombat resolves exactly one turn. Caller holds the slot lock.
func (o *Orchestrator) advanceCombat(ctx context.Context, s *slot) error {
	r := s.rumble

	// The commitment read can block on the ledger for seconds; it runs
	// before the cache lock so the read APIs keep serving meanwhile.
	var commitments map[turn.Identity]turn.Commitment
	if o.commitments != nil {
		var err error
		commitments, err = o.commitments(ctx, r.ID, r.Combat.Turn)
		if err != nil {
			// The turn is not resolved without its commitments; the next tick
			// retries the same turn number.
			return fmt.Errorf("read commitments for turn %d: %w", r.Combat.Turn, err)
		}
	}

	o.mu.Lock()
	result := r.Combat.Advance(commitments)
	r.TurnLog = append(r.TurnLog, result)
	if result.Complete {
		r.WinnerID = r.Combat.Fighters[result.WinnerIndex].Identity
		r.Placements = r.Combat.Placements()
		r.State = domain.StatePayout
	}
	o.mu.Unlock()

	o.hub.Publish(event.Event{
		Kind:      event.KindTurnResolved,
		SlotIndex: s.index,
		RumbleID:  r.ID,
		Payload:   result,
	})
	for _, idx := range result.Eliminations {
		o.hub.Publish(event.Event{
			Kind:      event.KindFighterEliminated,
			SlotIndex: s.index,
			RumbleID:  r.ID,
			Payload: map[string]any{
				"fighter": domain.HexIdentity(r.Combat.Fighters[idx].Identity),
				"rank":    r.Combat.Fighters[idx].Rank,
				"turn":    result.Turn,
			},
		})
	}
	if result.Complete {
		o.hub.Publish(event.Event{
			Kind:      event.KindRumbleComplete,
			SlotIndex: s.index,
			RumbleID:  r.ID,
			Payload: map[string]any{
				"winner":     domain.HexIdentity(r.WinnerID),
				"placements": r.Placements,
				"turns":      len(r.TurnLog),
			},
		})
	}
	return nil
}

// settleAndRecycle runs the payout engine once and returns the slot to idle.
// Caller holds the slot lock.
func (o *Orchestrator) settleAndRecycle(ctx context.Context, s *slot, now time.Time) error {
	r := s.rumble

	if !s.settled {
		// Settlement is durable-store I/O; only the slot lock is held.
		settlement, err := o.engine.Settle(ctx, r)
		if err != nil {
			return fmt.Errorf("settle rumble %d: %w", r.ID, err)
		}
		o.mu.Lock()
		s.settled = true
		if settlement != nil {
			o.cacheSettlement(settlement)
		}
		o.mu.Unlock()
	}

	o.mu.Lock()
	r.State = domain.StateComplete
	r.CompletedAt = now
	o.recycleSlot(s)
	o.mu.Unlock()
	return nil
}

// recycleSlot clears the lane for the next rumble. Caller holds both the slot
// lock and the cache lock.
func (o *Orchestrator) recycleSlot(s *slot) {
	r := s.rumble
	s.rumble = nil
	s.pool = nil
	s.settled = true
	o.hub.Publish(event.Event{
		Kind:      event.KindSlotRecycled,
		SlotIndex: s.index,
		RumbleID:  r.ID,
	})
}

// cacheSettlement keeps recent settlements readable after slot recycling.
// Caller holds the cache lock.
func (o *Orchestrator) cacheSettlement(settlement *payout.Settlement) {
	o.settlements[settlement.RumbleID] = settlement
	o.settledIDs = append(o.settledIDs, settlement.RumbleID)
	for len(o.settledIDs) > settlementCacheSize {
		delete(o.settlements, o.settledIDs[0])
		o.settledIDs = o.settledIDs[1:]
	}
}

// Recover reconciles every slot against the authoritative ledger, adopting
// forward-only merges and re-deriving the betting deadline from ledger time.
func (o *Orchestrator) Recover(ctx context.Context, client ledger.Client) error {
	ledgerNow, err := client.Now(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeLedgerUnavailable, "read ledger clock", err)
	}

	for _, s := range o.slots {
		if err := o.recoverSlot(ctx, client, s, ledgerNow); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) recoverSlot(ctx context.Context, client ledger.Client, s *slot, ledgerNow time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := client.SlotRumble(ctx, s.index)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeLedgerUnavailable,
			fmt.Sprintf("read slot %d rumble", s.index), err)
	}

	merged, changed, err := reconcile.Merge(s.rumble, rec, o.clock().UTC())
	if err != nil {
		return fmt.Errorf("merge slot %d: %w", s.index, err)
	}
	if !changed {
		return nil
	}

	// Past betting, the ledger's combat record is part of the rumble: it
	// restores the turn counter, HP/meter/ranks and the placements a
	// settlement needs. Settling an adopted rumble from the canonical
	// initial state would mark every bet lost.
	var combatRec ledger.CombatRecord
	haveCombat := false
	if merged.State >= domain.StateCombat {
		combatRec, err = client.Combat(ctx, merged.ID)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			if merged.State >= domain.StatePayout {
				return fmt.Errorf("slot %d: rumble %d is in %s with no combat record",
					s.index, merged.ID, merged.State)
			}
			// Combat opened with no turn resolved yet; initial state stands.
		case err != nil:
			return apperrors.Wrap(apperrors.CodeLedgerUnavailable,
				fmt.Sprintf("read combat for rumble %d", merged.ID), err)
		default:
			haveCombat = true
		}
	}

	// An adopted rumble's market state lives in the durable bets; the odds
	// cache is rebuilt from them, never left empty.
	adopted := s.rumble == nil || s.rumble.ID != merged.ID
	var pool *betting.Pool
	if adopted {
		pool = betting.NewPool(merged.ID, merged.FighterIDs())
		bets, err := o.store.ListBetsByRumble(ctx, merged.ID)
		if err != nil {
			return fmt.Errorf("reload bets for rumble %d: %w", merged.ID, err)
		}
		for _, bet := range bets {
			pool.AddStake(bet.FighterID, bet.Net)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if haveCombat {
		// merged can share combat state with the cached rumble, so the
		// overwrite happens under the cache lock.
		if err := reconcile.ApplyCombat(merged, combatRec); err != nil {
			return fmt.Errorf("slot %d: %w", s.index, err)
		}
	}
	if adopted {
		s.pool = pool
		s.settled = false
	}
	s.rumble = merged
	if merged.State == domain.StateBetting {
		s.bettingDeadline = o.clock().UTC().Add(reconcile.BettingRemaining(rec, ledgerNow))
	}
	return nil
}

func hexIdentities(ids []domain.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = domain.HexIdentity(id)
	}
	return out
}
