package payout

import (
	"context"
	"fmt"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/storage"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

// Claim skip reasons surfaced to the caller.
const (
	SkipSimulationFailed = "simulation_failed"
	SkipUnderfunded      = "underfunded"
)

// SkippedClaim names a bet dropped from the instruction and why.
type SkippedClaim struct {
	BetID  int64  `json:"bet_id"`
	Reason string `json:"reason"`
}

// ClaimInstruction is the payable batch handed back to the wallet.
type ClaimInstruction struct {
	Wallet domain.Identity `json:"-"`
	BetIDs []int64         `json:"bet_ids"`
	Amount uint64          `json:"amount"`
}

// ClaimSummary reports what the preparer included and what it dropped.
type ClaimSummary struct {
	ClaimCount      int            `json:"claim_count"`
	ClaimableAmount uint64         `json:"claimable_amount"`
	Skipped         []SkippedClaim `json:"skipped,omitempty"`
}

// ClaimPreparer assembles claim instructions from settled, unclaimed wins.
// It degrades gracefully: individually unready bets are skipped with a
// reason instead of failing the whole batch.
type ClaimPreparer struct {
	Bets    storage.BetStore
	Enabled bool

	// VaultBalance reports the spendable payout vault balance. Nil means
	// unlimited (the caller does not track vault funding).
	VaultBalance func(ctx context.Context) (uint64, error)

	// Simulate dry-runs one claim. Nil means every claim passes. A non-nil
	// error drops that bet from the batch.
	Simulate func(ctx context.Context, bet domain.Bet) error
}

// Prepare builds the claim instruction for a wallet, optionally scoped to a
// single rumble. Included bets are marked claimed so they are never handed
// out twice.
func (p *ClaimPreparer) Prepare(ctx context.Context, wallet domain.Identity, rumbleID *uint64) (ClaimInstruction, ClaimSummary, error) {
	instruction := ClaimInstruction{Wallet: wallet}
	var summary ClaimSummary

	if !p.Enabled {
		return instruction, summary, apperrors.New(apperrors.CodeClaimModeDisabled,
			"claim preparation is disabled")
	}

	settled, err := p.Bets.ListSettledBetsByWallet(ctx, wallet)
	if err != nil {
		return instruction, summary, fmt.Errorf("list settled bets: %w", err)
	}

	var ready []domain.Bet
	for _, bet := range settled {
		if bet.PayoutStatus != domain.PayoutWon || bet.PayoutAmount == 0 {
			continue
		}
		if rumbleID != nil && bet.RumbleID != *rumbleID {
			continue
		}
		ready = append(ready, bet)
	}
	if len(ready) == 0 {
		return instruction, summary, apperrors.New(apperrors.CodeClaimNoneReady,
			"no settled unclaimed wins for this wallet")
	}

	var passed []domain.Bet
	for _, bet := range ready {
		if p.Simulate != nil {
			if simErr := p.Simulate(ctx, bet); simErr != nil {
				summary.Skipped = append(summary.Skipped, SkippedClaim{BetID: bet.ID, Reason: SkipSimulationFailed})
				continue
			}
		}
		passed = append(passed, bet)
	}
	if len(passed) == 0 {
		return instruction, summary, apperrors.New(apperrors.CodeClaimAllFiltered,
			"every ready claim failed simulation")
	}

	balance := ^uint64(0)
	if p.VaultBalance != nil {
		balance, err = p.VaultBalance(ctx)
		if err != nil {
			return instruction, summary, fmt.Errorf("read vault balance: %w", err)
		}
	}

	// Greedy in settlement order: a bet that no longer fits the vault is
	// skipped, not partially paid.
	for _, bet := range passed {
		if instruction.Amount+bet.PayoutAmount > balance {
			summary.Skipped = append(summary.Skipped, SkippedClaim{BetID: bet.ID, Reason: SkipUnderfunded})
			continue
		}
		instruction.BetIDs = append(instruction.BetIDs, bet.ID)
		instruction.Amount += bet.PayoutAmount
	}
	if len(instruction.BetIDs) == 0 {
		return instruction, summary, apperrors.New(apperrors.CodeClaimVaultsUnderfunded,
			"payout vault cannot cover any ready claim")
	}

	for _, betID := range instruction.BetIDs {
		if err := p.Bets.MarkBetClaimed(ctx, betID); err != nil {
			return instruction, summary, fmt.Errorf("mark bet %d claimed: %w", betID, err)
		}
	}

	summary.ClaimCount = len(instruction.BetIDs)
	summary.ClaimableAmount = instruction.Amount
	return instruction, summary, nil
}
