package scheduler

import (
	"context"
	"fmt"

	"github.com/ichorlabs/rumble/internal/arena/betting"
	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/event"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

// ReplayedEvidenceMessage is the stable reason returned for reused wager
// evidence. Downstream tooling greps for it; never reword.
const ReplayedEvidenceMessage = "This transaction signature has already been used for a bet."

// BetRequest is one bet admission attempt.
type BetRequest struct {
	SlotIndex int
	FighterID domain.Identity
	Wallet    domain.Identity
	Gross     uint64 // lamports
	Evidence  string
}

// PlaceBet admits one bet against a betting-phase slot. It is safe to call
// concurrently from request handlers: admission holds the slot lock, so the
// state check, the evidence claim and the pool credit can never race that
// slot's tick transitions. The durable writes stay off the orchestrator's
// cache lock and the other slots.
func (o *Orchestrator) PlaceBet(ctx context.Context, req BetRequest) (domain.Bet, error) {
	if req.Evidence == "" {
		return domain.Bet{}, apperrors.New(apperrors.CodeBetEvidenceMissing, "wager evidence is required")
	}
	if req.Gross < o.cfg.MinBet || req.Gross > o.cfg.MaxBet {
		return domain.Bet{}, apperrors.WithMetadata(
			apperrors.CodeBetAmountOutOfRange,
			fmt.Sprintf("bet amount %d is outside [%d, %d]", req.Gross, o.cfg.MinBet, o.cfg.MaxBet),
			map[string]string{"Min": fmt.Sprint(o.cfg.MinBet), "Max": fmt.Sprint(o.cfg.MaxBet)},
		)
	}
	if req.SlotIndex < 0 || req.SlotIndex >= len(o.slots) {
		return domain.Bet{}, apperrors.New(apperrors.CodeBetSlotInvalid,
			fmt.Sprintf("slot %d does not exist", req.SlotIndex))
	}
	s := o.slots[req.SlotIndex]

	s.mu.Lock()
	defer s.mu.Unlock()

	now := o.clock().UTC()
	if s.rumble == nil || s.rumble.State != domain.StateBetting || !now.Before(s.bettingDeadline) {
		return domain.Bet{}, apperrors.New(apperrors.CodeBettingClosed,
			fmt.Sprintf("slot %d is not accepting bets", req.SlotIndex))
	}
	if s.rumble.FighterIndex(req.FighterID) < 0 {
		return domain.Bet{}, apperrors.New(apperrors.CodeBetFighterNotInRumble,
			fmt.Sprintf("fighter %s is not in rumble %d", domain.HexIdentity(req.FighterID), s.rumble.ID))
	}

	already, err := o.guard.MarkUsed(ctx, req.Evidence)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("claim wager evidence: %w", err)
	}
	if already {
		return domain.Bet{}, apperrors.New(apperrors.CodeBetEvidenceReused, ReplayedEvidenceMessage)
	}

	net, adminFee, sponsorFee := betting.Split(req.Gross)
	bet := domain.Bet{
		RumbleID:     s.rumble.ID,
		Bettor:       req.Wallet,
		FighterID:    req.FighterID,
		Gross:        req.Gross,
		Net:          net,
		AdminFee:     adminFee,
		SponsorFee:   sponsorFee,
		Evidence:     req.Evidence,
		PlacedAt:     now,
		PayoutStatus: domain.PayoutPending,
	}
	bet.ID, err = o.store.PutBet(ctx, bet)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("persist bet: %w", err)
	}

	s.pool.AddStake(req.FighterID, net)
	o.hub.Publish(event.Event{
		Kind:      event.KindBettingOddsChanged,
		SlotIndex: s.index,
		RumbleID:  s.rumble.ID,
		Payload:   map[string]any{"odds": s.pool.Odds(), "total_pool": s.pool.Total()},
	})
	return bet, nil
}
