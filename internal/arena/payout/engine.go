// Package payout converts a finished rumble's pool and outcome into
// per-bettor settlements, protocol fees, ICHOR reward emission and the
// ichor shower jackpot.
package payout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/event"
	"github.com/ichorlabs/rumble/internal/arena/storage"
	"github.com/ichorlabs/rumble/internal/core/prf"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

// ICHOR emission constants, mirroring the authoritative token program.
const (
	OneIchor = 1_000_000_000 // 9 decimals

	SeasonReward = 2_500 * OneIchor // flat per-rumble emission

	BettorShareBps  = 1_000 // 10% of the season reward to bettors, pro-rata
	FighterShareBps = 8_000 // 80% to fighters (paid on-chain, not here)
	ShowerShareBps  = 1_000 // 10% accrues to the shower pool

	ShowerBonusEmission = 200_000_000 // extra 0.2 ICHOR per rumble
	ShowerChance        = 500         // 1-in-500 trigger per rumble
)

// rollRumble is swapped in tests to force or suppress the jackpot.
var rollRumble = prf.RollRumble

// BetSettlement is one bet's computed outcome.
type BetSettlement struct {
	BetID       int64
	Wallet      domain.Identity
	Payout      uint64
	Status      domain.PayoutStatus
	RewardIchor uint64
}

// ShowerOutcome records whether the jackpot fired for this rumble.
type ShowerOutcome struct {
	Triggered bool
	Winner    domain.Identity
	Amount    uint64
}

// Settlement is the full computed payout for one rumble.
type Settlement struct {
	RumbleID     uint64
	TotalPool    uint64
	LosersPool   uint64
	TreasuryCut  uint64
	FeesRetained uint64 // treasury cut plus integer-division dust
	Bets         []BetSettlement
	Shower       ShowerOutcome
	PoolAfter    domain.ShowerPool
}

// Compute derives the settlement from durable truth alone: the completed
// rumble, its admitted bets and the current shower pool. It is pure; the
// jackpot trigger and winner selection use the same deterministic hashing
// discipline as combat.
func Compute(r *domain.Rumble, bets []domain.Bet, shower domain.ShowerPool) Settlement {
	s := Settlement{RumbleID: r.ID, PoolAfter: shower}

	// Net pool per fighter index, rebuilt from the bets so the settlement
	// depends only on durable records.
	fighterPools := make(map[int]uint64, len(r.Combat.Fighters))
	for _, bet := range bets {
		idx := r.FighterIndex(bet.FighterID)
		if idx < 0 {
			continue
		}
		fighterPools[idx] += bet.Net
		s.TotalPool += bet.Net
	}

	// Pool totals by placement tier; everything outside the top three is the
	// losers' pool.
	var placePools [4]uint64
	for idx, pool := range fighterPools {
		p := placementOf(r, idx)
		if p >= 1 && p <= 3 {
			placePools[p] += pool
		} else {
			s.LosersPool += pool
		}
	}

	s.TreasuryCut = s.LosersPool * domain.TreasuryCutBps / domain.BpsDenominator
	distributable := s.LosersPool - s.TreasuryCut

	allocations := [4]uint64{
		1: distributable * domain.FirstPlaceBps / domain.BpsDenominator,
		2: distributable * domain.SecondPlaceBps / domain.BpsDenominator,
		3: distributable * domain.ThirdPlaceBps / domain.BpsDenominator,
	}

	bettorRewardPool := uint64(SeasonReward) * BettorShareBps / domain.BpsDenominator

	var paidOut uint64
	for _, bet := range bets {
		settled := BetSettlement{BetID: bet.ID, Wallet: bet.Bettor, Status: domain.PayoutLost}

		p := placementOf(r, r.FighterIndex(bet.FighterID))
		if p >= 1 && p <= 3 && placePools[p] > 0 {
			winnings := allocations[p] * bet.Net / placePools[p]
			settled.Payout = bet.Net + winnings
			settled.Status = domain.PayoutWon
		}
		if s.TotalPool > 0 {
			settled.RewardIchor = bettorRewardPool * bet.Net / s.TotalPool
		}

		paidOut += settled.Payout
		s.Bets = append(s.Bets, settled)
	}
	s.FeesRetained = s.TotalPool - paidOut

	s.resolveShower(r.ID, bets)
	return s
}

// resolveShower accrues this rumble's contribution and rolls the jackpot
// trigger with fixed 1-in-500 odds.
func (s *Settlement) resolveShower(rumbleID uint64, bets []domain.Bet) {
	contribution := uint64(SeasonReward)*ShowerShareBps/domain.BpsDenominator + ShowerBonusEmission
	s.PoolAfter.PoolAmount += contribution

	if rollRumble(prf.DomainIchorShower, rumbleID)%ShowerChance != 0 {
		return
	}
	winner, ok := showerWinner(rumbleID, bets)
	if !ok || s.PoolAfter.PoolAmount == 0 {
		return
	}

	s.Shower = ShowerOutcome{
		Triggered: true,
		Winner:    winner,
		Amount:    s.PoolAfter.PoolAmount,
	}
	s.PoolAfter = domain.ShowerPool{
		LastTriggerRumbleID: rumbleID,
		LastWinnerWallet:    winner,
		LastPayout:          s.Shower.Amount,
	}
}

// showerWinner picks one bettor weighted by net stake, deterministically.
// Bets are walked in admission (id) order so the cumulative walk is stable.
func showerWinner(rumbleID uint64, bets []domain.Bet) (domain.Identity, bool) {
	ordered := make([]domain.Bet, len(bets))
	copy(ordered, bets)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].ID < ordered[b].ID })

	var totalStake uint64
	for _, bet := range ordered {
		totalStake += bet.Net
	}
	if totalStake == 0 {
		return domain.Identity{}, false
	}

	target := rollRumble(prf.DomainShowerWinner, rumbleID) % totalStake
	var cumulative uint64
	for _, bet := range ordered {
		cumulative += bet.Net
		if target < cumulative {
			return bet.Bettor, true
		}
	}
	return domain.Identity{}, false
}

func placementOf(r *domain.Rumble, fighterIdx int) int {
	if fighterIdx < 0 || fighterIdx >= len(r.Placements) {
		return 0
	}
	return r.Placements[fighterIdx]
}

// Engine persists settlements exactly once per rumble.
type Engine struct {
	store storage.Store
	hub   *event.Hub
	clock func() time.Time
}

// NewEngine creates a payout engine over the durable store.
func NewEngine(store storage.Store, hub *event.Hub) *Engine {
	return &Engine{store: store, hub: hub, clock: time.Now}
}

// Settle computes and durably records the settlement for a rumble that just
// finished combat. It is idempotent: a rumble already marked settled is a
// no-op returning (nil, nil), so a second invocation can never double-pay.
func (e *Engine) Settle(ctx context.Context, r *domain.Rumble) (*Settlement, error) {
	if r.State == domain.StateComplete {
		return nil, apperrors.New(apperrors.CodePayoutAlreadySettled,
			fmt.Sprintf("rumble %d is already complete", r.ID))
	}

	already, err := e.store.MarkSettled(ctx, r.ID, e.clock().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark rumble %d settled: %w", r.ID, err)
	}
	if already {
		return nil, nil
	}

	bets, err := e.store.ListBetsByRumble(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("list bets for rumble %d: %w", r.ID, err)
	}
	shower, err := e.store.ShowerPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("load shower pool: %w", err)
	}

	settlement := Compute(r, bets, shower)

	for _, bs := range settlement.Bets {
		if err := e.store.SettleBet(ctx, bs.BetID, bs.Payout, bs.Status); err != nil {
			return nil, fmt.Errorf("settle bet %d: %w", bs.BetID, err)
		}
	}
	if err := e.store.SaveShowerPool(ctx, settlement.PoolAfter); err != nil {
		return nil, fmt.Errorf("save shower pool: %w", err)
	}

	if e.hub != nil {
		e.hub.Publish(event.Event{
			Kind:      event.KindPayoutComplete,
			SlotIndex: r.SlotIndex,
			RumbleID:  r.ID,
			Payload:   settlement,
		})
		if settlement.Shower.Triggered {
			e.hub.Publish(event.Event{
				Kind:      event.KindIchorShower,
				SlotIndex: r.SlotIndex,
				RumbleID:  r.ID,
				Payload:   settlement.Shower,
			})
		}
	}
	return &settlement, nil
}
