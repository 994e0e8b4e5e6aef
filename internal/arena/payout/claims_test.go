package payout

import (
	"context"
	"errors"
	"testing"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/storage/storagetest"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

func settledWin(rumbleID uint64, wallet domain.Identity, amount uint64) domain.Bet {
	return domain.Bet{
		RumbleID:     rumbleID,
		Bettor:       wallet,
		FighterID:    identity("fighter"),
		Net:          amount / 2,
		PayoutAmount: amount,
		PayoutStatus: domain.PayoutWon,
	}
}

func TestClaimPreparer_Disabled(t *testing.T) {
	p := &ClaimPreparer{Bets: storagetest.NewMemoryStore()}

	_, _, err := p.Prepare(context.Background(), identity("w"), nil)
	if !apperrors.IsCode(err, apperrors.CodeClaimModeDisabled) {
		t.Fatalf("err = %v, want CLAIM_MODE_DISABLED", err)
	}
}

func TestClaimPreparer_NoReadyClaims(t *testing.T) {
	store := storagetest.NewMemoryStore()
	ctx := context.Background()
	wallet := identity("w")

	// A lost bet and a pending bet are not claimable.
	store.PutBet(ctx, domain.Bet{RumbleID: 1, Bettor: wallet, PayoutStatus: domain.PayoutLost})
	store.PutBet(ctx, domain.Bet{RumbleID: 2, Bettor: wallet, PayoutStatus: domain.PayoutPending})

	p := &ClaimPreparer{Bets: store, Enabled: true}
	_, _, err := p.Prepare(ctx, wallet, nil)
	if !apperrors.IsCode(err, apperrors.CodeClaimNoneReady) {
		t.Fatalf("err = %v, want NO_READY_CLAIMS", err)
	}
}

func TestClaimPreparer_BatchesAndMarksClaimed(t *testing.T) {
	store := storagetest.NewMemoryStore()
	ctx := context.Background()
	wallet := identity("w")

	id1, _ := store.PutBet(ctx, settledWin(1, wallet, 5_000))
	id2, _ := store.PutBet(ctx, settledWin(2, wallet, 7_000))
	store.PutBet(ctx, settledWin(3, identity("other"), 9_000))

	p := &ClaimPreparer{Bets: store, Enabled: true}
	instruction, summary, err := p.Prepare(ctx, wallet, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if instruction.Amount != 12_000 || summary.ClaimCount != 2 {
		t.Fatalf("prepared (%d, %d claims), want (12000, 2)", instruction.Amount, summary.ClaimCount)
	}

	for _, id := range []int64{id1, id2} {
		if bet, _ := store.Bet(id); bet.PayoutStatus != domain.PayoutClaimed {
			t.Fatalf("bet %d status = %s, want claimed", id, bet.PayoutStatus)
		}
	}

	// Handed-out claims never appear in a second batch.
	if _, _, err := p.Prepare(ctx, wallet, nil); !apperrors.IsCode(err, apperrors.CodeClaimNoneReady) {
		t.Fatalf("second prepare err = %v, want NO_READY_CLAIMS", err)
	}
}

func TestClaimPreparer_ScopedToRumble(t *testing.T) {
	store := storagetest.NewMemoryStore()
	ctx := context.Background()
	wallet := identity("w")

	store.PutBet(ctx, settledWin(1, wallet, 5_000))
	store.PutBet(ctx, settledWin(2, wallet, 7_000))

	p := &ClaimPreparer{Bets: store, Enabled: true}
	rumbleID := uint64(2)
	instruction, _, err := p.Prepare(ctx, wallet, &rumbleID)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if instruction.Amount != 7_000 || len(instruction.BetIDs) != 1 {
		t.Fatalf("scoped claim = (%d, %d bets), want (7000, 1)", instruction.Amount, len(instruction.BetIDs))
	}
}

func TestClaimPreparer_SimulationFiltersIndividually(t *testing.T) {
	store := storagetest.NewMemoryStore()
	ctx := context.Background()
	wallet := identity("w")

	store.PutBet(ctx, settledWin(1, wallet, 5_000))
	id2, _ := store.PutBet(ctx, settledWin(2, wallet, 7_000))

	p := &ClaimPreparer{
		Bets:    store,
		Enabled: true,
		Simulate: func(_ context.Context, bet domain.Bet) error {
			if bet.ID == id2 {
				return errors.New("account not writable")
			}
			return nil
		},
	}
	instruction, summary, err := p.Prepare(ctx, wallet, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if instruction.Amount != 5_000 {
		t.Fatalf("amount = %d, want 5000", instruction.Amount)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0].Reason != SkipSimulationFailed {
		t.Fatalf("skipped = %+v, want one simulation_failed", summary.Skipped)
	}
}

func TestClaimPreparer_SimulationFiltersAll(t *testing.T) {
	store := storagetest.NewMemoryStore()
	ctx := context.Background()
	wallet := identity("w")
	store.PutBet(ctx, settledWin(1, wallet, 5_000))

	p := &ClaimPreparer{
		Bets:     store,
		Enabled:  true,
		Simulate: func(context.Context, domain.Bet) error { return errors.New("stale blockhash") },
	}
	if _, _, err := p.Prepare(ctx, wallet, nil); !apperrors.IsCode(err, apperrors.CodeClaimAllFiltered) {
		t.Fatalf("err = %v, want SIMULATION_FILTERED_ALL", err)
	}
}

func TestClaimPreparer_Underfunded(t *testing.T) {
	store := storagetest.NewMemoryStore()
	ctx := context.Background()
	wallet := identity("w")

	store.PutBet(ctx, settledWin(1, wallet, 5_000))
	store.PutBet(ctx, settledWin(2, wallet, 7_000))

	// Vault covers only the first claim; the second is dropped, not failed.
	p := &ClaimPreparer{
		Bets:         store,
		Enabled:      true,
		VaultBalance: func(context.Context) (uint64, error) { return 6_000, nil },
	}
	instruction, summary, err := p.Prepare(ctx, wallet, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if instruction.Amount != 5_000 {
		t.Fatalf("amount = %d, want 5000", instruction.Amount)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0].Reason != SkipUnderfunded {
		t.Fatalf("skipped = %+v, want one underfunded", summary.Skipped)
	}

	// An empty vault rejects the whole batch with a structured error.
	p.VaultBalance = func(context.Context) (uint64, error) { return 0, nil }
	wallet2 := identity("w2")
	store.PutBet(ctx, settledWin(3, wallet2, 1_000))
	if _, _, err := p.Prepare(ctx, wallet2, nil); !apperrors.IsCode(err, apperrors.CodeClaimVaultsUnderfunded) {
		t.Fatalf("err = %v, want VAULTS_UNDERFUNDED", err)
	}
}
