package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/betting/replayguard"
	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/event"
	"github.com/ichorlabs/rumble/internal/arena/ledger"
	"github.com/ichorlabs/rumble/internal/arena/ledger/ledgertest"
	"github.com/ichorlabs/rumble/internal/arena/queue"
	"github.com/ichorlabs/rumble/internal/arena/storage/storagetest"
	"github.com/ichorlabs/rumble/internal/core/turn"
	"github.com/ichorlabs/rumble/internal/verifier"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

func identity(name string) domain.Identity {
	var id domain.Identity
	copy(id[:], name)
	return id
}

type fixture struct {
	orch  *Orchestrator
	queue *queue.Manager
	store *storagetest.MemoryStore
	hub   *event.Hub
	now   time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		queue: queue.NewManager(),
		store: storagetest.NewMemoryStore(),
		hub:   event.NewHub(),
		now:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	f.orch = New(cfg, f.queue, f.store, replayguard.NewMemory(), f.hub, nil)
	f.orch.clock = func() time.Time { return f.now }
	nextID := uint64(100)
	f.orch.newRumbleID = func() uint64 { nextID++; return nextID }
	return f
}

func (f *fixture) enqueue(t *testing.T, names ...string) []domain.Identity {
	t.Helper()
	ids := make([]domain.Identity, len(names))
	for i, n := range names {
		ids[i] = identity(n)
		if err := f.queue.Enqueue(ids[i]); err != nil {
			t.Fatalf("Enqueue(%s): %v", n, err)
		}
	}
	return ids
}

func (f *fixture) tick(t *testing.T) {
	t.Helper()
	if err := f.orch.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func TestTick_FormsRumbleOnlyWithFullRoster(t *testing.T) {
	f := newFixture(t, Config{Slots: 1, FighterCount: 4, BettingWindow: time.Minute})

	f.enqueue(t, "a", "b", "c")
	f.tick(t)
	if status := f.orch.Status(); status[0].State != "idle" {
		t.Fatalf("state with short queue = %s, want idle", status[0].State)
	}

	sub := f.hub.Subscribe(event.KindBettingOpen)
	defer sub.Cancel()

	f.enqueue(t, "d")
	f.tick(t)
	status := f.orch.Status()
	if status[0].State != "betting" || status[0].RumbleID == 0 {
		t.Fatalf("status = %+v, want betting with rumble id", status[0])
	}
	select {
	case evt := <-sub.C:
		if evt.SlotIndex != 0 {
			t.Fatalf("betting_open slot = %d, want 0", evt.SlotIndex)
		}
	default:
		t.Fatal("betting_open not published")
	}
	if f.queue.Len() != 0 {
		t.Fatalf("queue len = %d, want 0", f.queue.Len())
	}
}

func TestPlaceBet_Admission(t *testing.T) {
	f := newFixture(t, Config{Slots: 1, FighterCount: 2, BettingWindow: time.Minute})
	fighters := f.enqueue(t, "alpha", "bravo")
	f.tick(t)

	ctx := context.Background()
	valid := BetRequest{
		SlotIndex: 0,
		FighterID: fighters[0],
		Wallet:    identity("wallet"),
		Gross:     10_000_000,
		Evidence:  "sig-1",
	}

	bet, err := f.orch.PlaceBet(ctx, valid)
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if bet.Net != 9_400_000 || bet.AdminFee != 100_000 || bet.SponsorFee != 500_000 {
		t.Fatalf("fee split = (%d, %d, %d)", bet.Net, bet.AdminFee, bet.SponsorFee)
	}

	tests := []struct {
		name string
		req  BetRequest
		code apperrors.Code
	}{
		{"reused evidence", valid, apperrors.CodeBetEvidenceReused},
		{"bad slot", BetRequest{SlotIndex: 9, FighterID: fighters[0], Gross: valid.Gross, Evidence: "sig-2"}, apperrors.CodeBetSlotInvalid},
		{"below minimum", BetRequest{SlotIndex: 0, FighterID: fighters[0], Gross: 999, Evidence: "sig-3"}, apperrors.CodeBetAmountOutOfRange},
		{"above maximum", BetRequest{SlotIndex: 0, FighterID: fighters[0], Gross: 101 * domain.LamportsPerSol, Evidence: "sig-4"}, apperrors.CodeBetAmountOutOfRange},
		{"unknown fighter", BetRequest{SlotIndex: 0, FighterID: identity("nobody"), Gross: valid.Gross, Evidence: "sig-5"}, apperrors.CodeBetFighterNotInRumble},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.orch.PlaceBet(ctx, tt.req); !apperrors.IsCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestPlaceBet_ReplayMessageIsStable(t *testing.T) {
	f := newFixture(t, Config{Slots: 1, FighterCount: 2, BettingWindow: time.Minute})
	fighters := f.enqueue(t, "alpha", "bravo")
	f.tick(t)

	req := BetRequest{SlotIndex: 0, FighterID: fighters[0], Wallet: identity("w"), Gross: 10_000_000, Evidence: "sig-1"}
	if _, err := f.orch.PlaceBet(context.Background(), req); err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	_, err := f.orch.PlaceBet(context.Background(), req)
	if err == nil || err.Error() != ReplayedEvidenceMessage {
		t.Fatalf("replay message = %q, want %q", err, ReplayedEvidenceMessage)
	}
}

func TestPlaceBet_ClosedAfterDeadline(t *testing.T) {
	f := newFixture(t, Config{Slots: 1, FighterCount: 2, BettingWindow: time.Minute})
	fighters := f.enqueue(t, "alpha", "bravo")
	f.tick(t)

	f.now = f.now.Add(61 * time.Second)
	req := BetRequest{SlotIndex: 0, FighterID: fighters[0], Wallet: identity("w"), Gross: 10_000_000, Evidence: "sig-1"}
	if _, err := f.orch.PlaceBet(context.Background(), req); !apperrors.IsCode(err, apperrors.CodeBettingClosed) {
		t.Fatalf("err = %v, want BETTING_CLOSED", err)
	}
}

func TestEndToEnd_EightFighters(t *testing.T) {
	f := newFixture(t, Config{Slots: 1, FighterCount: 8, BettingWindow: time.Minute})
	fighters := f.enqueue(t, "f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8")
	f.tick(t)

	ctx := context.Background()
	stakes := []struct {
		fighter  domain.Identity
		gross    uint64
		evidence string
	}{
		{fighters[0], domain.LamportsPerSol / 100, "sig-1"},     // 0.01 SOL
		{fighters[1], domain.LamportsPerSol / 50, "sig-2"},      // 0.02 SOL
		{fighters[2], domain.LamportsPerSol / 20, "sig-3"},      // 0.05 SOL
	}
	var totalNet uint64
	for _, s := range stakes {
		bet, err := f.orch.PlaceBet(ctx, BetRequest{
			SlotIndex: 0, FighterID: s.fighter, Wallet: identity("w-" + s.evidence),
			Gross: s.gross, Evidence: s.evidence,
		})
		if err != nil {
			t.Fatalf("PlaceBet(%s): %v", s.evidence, err)
		}
		totalNet += bet.Net
	}

	// Deadline passes; the next tick closes betting and opens combat.
	f.now = f.now.Add(61 * time.Second)
	f.tick(t)
	rumble := f.orch.slots[0].rumble
	if rumble.State != domain.StateCombat {
		t.Fatalf("state = %s, want combat", rumble.State)
	}
	rumbleID := rumble.ID

	// Run combat to completion.
	for i := 0; rumble.State == domain.StateCombat; i++ {
		if i > 500 {
			t.Fatal("combat did not complete")
		}
		f.tick(t)
	}
	if rumble.State != domain.StatePayout {
		t.Fatalf("state after combat = %s, want payout", rumble.State)
	}
	winner := rumble.WinnerID
	turns := len(rumble.TurnLog)

	// Snapshot authoritative arrays before the slot recycles.
	auth := verifier.Authoritative{}
	fightersRaw := make([][32]byte, len(fighters))
	for i, fs := range rumble.Combat.Fighters {
		fightersRaw[i] = fs.Identity
		auth.HP = append(auth.HP, fs.HP)
		auth.Meter = append(auth.Meter, fs.Meter)
		auth.Rank = append(auth.Rank, fs.Rank)
		auth.DamageDealt = append(auth.DamageDealt, fs.DamageDealt)
		auth.DamageTaken = append(auth.DamageTaken, fs.DamageTaken)
	}

	// The next tick settles and recycles the slot.
	f.tick(t)
	if status := f.orch.Status(); status[0].State != "idle" {
		t.Fatalf("state after settlement = %s, want idle", status[0].State)
	}

	settlement, err := f.orch.PayoutResult(rumbleID)
	if err != nil {
		t.Fatalf("PayoutResult: %v", err)
	}

	// Conservation: what the pool takes in, it pays out or retains.
	var paid uint64
	for _, bs := range settlement.Bets {
		paid += bs.Payout
	}
	if paid+settlement.FeesRetained != settlement.TotalPool {
		t.Fatalf("paid %d + retained %d != pool %d", paid, settlement.FeesRetained, settlement.TotalPool)
	}
	if settlement.TotalPool != totalNet {
		t.Fatalf("total pool = %d, want %d", settlement.TotalPool, totalNet)
	}

	// No bettor is paid for a fighter outside the podium.
	bets, _ := f.store.ListBetsByRumble(ctx, rumbleID)
	for _, bet := range bets {
		placement := 0
		for i, id := range fightersRaw {
			if id == bet.FighterID {
				placement = settlementPlacement(auth.Rank, i, len(fightersRaw), winner, fightersRaw)
			}
		}
		if placement >= 1 && placement <= 3 {
			if bet.PayoutStatus != domain.PayoutWon || bet.PayoutAmount < bet.Net {
				t.Fatalf("podium bet %d = (%s, %d)", bet.ID, bet.PayoutStatus, bet.PayoutAmount)
			}
		} else if bet.PayoutStatus != domain.PayoutLost || bet.PayoutAmount != 0 {
			t.Fatalf("losing bet %d = (%s, %d)", bet.ID, bet.PayoutStatus, bet.PayoutAmount)
		}
	}

	// Independent verifier replay reproduces the exact final arrays.
	computed := verifier.Replay(rumbleID, fightersRaw, make([]map[[32]byte]verifier.Move, turns))
	report, err := verifier.Diff(rumbleID, turns, computed, auth)
	if err != nil {
		t.Fatalf("verifier.Diff: %v", err)
	}
	if !report.OK() {
		t.Fatalf("verifier disagreed: %+v", report.Mismatches)
	}
}

// settlementPlacement mirrors placement assignment: winner 1st, later
// eliminations place better.
func settlementPlacement(ranks []int, idx, n int, winner domain.Identity, fighters [][32]byte) int {
	if fighters[idx] == winner {
		return 1
	}
	if ranks[idx] == 0 {
		return 0
	}
	return n - ranks[idx] + 1
}

func TestRecover_AdoptsLedgerState(t *testing.T) {
	f := newFixture(t, Config{Slots: 2, FighterCount: 4, BettingWindow: time.Minute})

	ledgerNow := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	fake := ledgertest.New(ledgerNow)
	fake.SetRumble(ledger.RumbleRecord{
		ID:            55,
		SlotIndex:     1,
		State:         domain.StateBetting,
		Fighters:      []domain.Identity{identity("alpha"), identity("bravo")},
		BettingEndsAt: ledgerNow.Add(30 * time.Second),
	})

	if err := f.orch.Recover(context.Background(), fake); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	status := f.orch.Status()
	if status[0].State != "idle" {
		t.Fatalf("slot 0 = %s, want idle", status[0].State)
	}
	if status[1].State != "betting" || status[1].RumbleID != 55 {
		t.Fatalf("slot 1 = %+v, want betting rumble 55", status[1])
	}

	// The deadline is re-derived from ledger time, not the stale record.
	info, err := f.orch.Odds(1)
	if err != nil {
		t.Fatalf("Odds: %v", err)
	}
	if !info.BettingOpen {
		t.Fatal("recovered betting slot is closed")
	}
	if got := info.BettingDeadline.Sub(f.now); got != 30*time.Second {
		t.Fatalf("recovered deadline in %v, want 30s", got)
	}
}

func TestRecover_PayoutStateSettlesFromLedgerCombat(t *testing.T) {
	f := newFixture(t, Config{Slots: 1, FighterCount: 2, BettingWindow: time.Minute})

	alpha, bravo := identity("alpha"), identity("bravo")
	fake := ledgertest.New(f.now)
	fake.SetRumble(ledger.RumbleRecord{
		ID: 77, SlotIndex: 0,
		State:    domain.StatePayout,
		Fighters: []domain.Identity{alpha, bravo},
		WinnerID: alpha,
	})
	fake.SetCombat(77, ledger.CombatRecord{
		Turn:        4,
		HP:          []int{35, 0},
		Meter:       []int{2, 1},
		Rank:        []int{0, 1},
		DamageDealt: []int{100, 65},
		DamageTaken: []int{65, 100},
	})

	// The durable bet survived the restart even though the cache did not.
	bet := domain.Bet{
		RumbleID: 77, Bettor: identity("wallet"), FighterID: alpha,
		Gross: 10_000_000, Net: 9_400_000, AdminFee: 100_000, SponsorFee: 500_000,
		Evidence: "sig-1", PlacedAt: f.now, PayoutStatus: domain.PayoutPending,
	}
	if _, err := f.store.PutBet(context.Background(), bet); err != nil {
		t.Fatalf("PutBet: %v", err)
	}

	if err := f.orch.Recover(context.Background(), fake); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	// The market cache is rebuilt from durable bets, not left empty.
	info, err := f.orch.Odds(0)
	if err != nil {
		t.Fatalf("Odds: %v", err)
	}
	if info.TotalPool != bet.Net {
		t.Fatalf("recovered pool = %d, want %d", info.TotalPool, bet.Net)
	}

	f.tick(t)
	settlement, err := f.orch.PayoutResult(77)
	if err != nil {
		t.Fatalf("PayoutResult: %v", err)
	}
	if len(settlement.Bets) != 1 {
		t.Fatalf("settled bets = %d, want 1", len(settlement.Bets))
	}
	got := settlement.Bets[0]
	if got.Status != domain.PayoutWon || got.Payout < bet.Net {
		t.Fatalf("winner bet = (%s, %d), want won with at least %d", got.Status, got.Payout, bet.Net)
	}
	var paid uint64
	for _, bs := range settlement.Bets {
		paid += bs.Payout
	}
	if paid+settlement.FeesRetained != settlement.TotalPool {
		t.Fatalf("paid %d + retained %d != pool %d", paid, settlement.FeesRetained, settlement.TotalPool)
	}
	if status := f.orch.Status(); status[0].State != "idle" {
		t.Fatalf("state after settlement = %s, want idle", status[0].State)
	}
}

func TestRecover_MidCombatResumesTurnCounter(t *testing.T) {
	f := newFixture(t, Config{Slots: 1, FighterCount: 2, BettingWindow: time.Minute})

	fake := ledgertest.New(f.now)
	fake.SetRumble(ledger.RumbleRecord{
		ID: 60, SlotIndex: 0,
		State:    domain.StateCombat,
		Fighters: []domain.Identity{identity("alpha"), identity("bravo")},
	})
	fake.SetCombat(60, ledger.CombatRecord{
		Turn:        5,
		HP:          []int{64, 48},
		Meter:       []int{3, 2},
		Rank:        []int{0, 0},
		DamageDealt: []int{52, 36},
		DamageTaken: []int{36, 52},
	})

	if err := f.orch.Recover(context.Background(), fake); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if status := f.orch.Status(); status[0].Turn != 6 {
		t.Fatalf("next turn = %d, want 6", status[0].Turn)
	}

	// The next resolved turn continues where the ledger left off; turns one
	// through five are never re-emitted.
	sub := f.hub.Subscribe(event.KindTurnResolved)
	defer sub.Cancel()
	f.tick(t)

	select {
	case evt := <-sub.C:
		result, ok := evt.Payload.(turn.Result)
		if !ok {
			t.Fatalf("payload = %T, want turn.Result", evt.Payload)
		}
		if result.Turn != 6 {
			t.Fatalf("resolved turn = %d, want 6", result.Turn)
		}
	default:
		t.Fatal("turn_resolved not published")
	}
}

func TestRecover_CompleteRumbleRecyclesWithoutSettling(t *testing.T) {
	f := newFixture(t, Config{Slots: 1, FighterCount: 2, BettingWindow: time.Minute})

	alpha, bravo := identity("alpha"), identity("bravo")
	fake := ledgertest.New(f.now)
	fake.SetRumble(ledger.RumbleRecord{
		ID: 88, SlotIndex: 0,
		State:    domain.StateComplete,
		Fighters: []domain.Identity{alpha, bravo},
		WinnerID: alpha,
	})
	fake.SetCombat(88, ledger.CombatRecord{
		Turn:        3,
		HP:          []int{20, 0},
		Meter:       []int{1, 0},
		Rank:        []int{0, 1},
		DamageDealt: []int{100, 80},
		DamageTaken: []int{80, 100},
	})

	bet := domain.Bet{
		RumbleID: 88, Bettor: identity("wallet"), FighterID: bravo,
		Gross: 10_000_000, Net: 9_400_000, Evidence: "sig-1",
		PlacedAt: f.now, PayoutStatus: domain.PayoutPending,
	}
	betID, err := f.store.PutBet(context.Background(), bet)
	if err != nil {
		t.Fatalf("PutBet: %v", err)
	}

	if err := f.orch.Recover(context.Background(), fake); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	sub := f.hub.Subscribe(event.KindSlotRecycled)
	defer sub.Cancel()
	f.tick(t)

	if status := f.orch.Status(); status[0].State != "idle" {
		t.Fatalf("state = %s, want idle", status[0].State)
	}
	select {
	case evt := <-sub.C:
		if evt.RumbleID != 88 {
			t.Fatalf("recycled rumble = %d, want 88", evt.RumbleID)
		}
	default:
		t.Fatal("slot_recycled not published")
	}

	// The ledger already settled this rumble; its bets are not re-settled.
	if got, ok := f.store.Bet(betID); !ok || got.PayoutStatus != domain.PayoutPending {
		t.Fatalf("bet after recycle = (%v, %s), want pending", ok, got.PayoutStatus)
	}
	if _, err := f.orch.PayoutResult(88); !apperrors.IsCode(err, apperrors.CodeRumbleNotFound) {
		t.Fatalf("PayoutResult err = %v, want RUMBLE_NOT_FOUND", err)
	}
}

func TestReads_ServeDuringSlowCommitmentFetch(t *testing.T) {
	f := newFixture(t, Config{Slots: 1, FighterCount: 2, BettingWindow: time.Minute})
	release := make(chan struct{})
	f.orch.commitments = func(context.Context, uint64, uint32) (map[turn.Identity]turn.Commitment, error) {
		<-release
		return nil, nil
	}

	f.enqueue(t, "alpha", "bravo")
	f.tick(t)
	f.now = f.now.Add(61 * time.Second)
	f.tick(t)

	// This tick parks inside the commitment fetch with only the slot lock
	// held; the read APIs keep serving from the cache.
	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		f.orch.Tick(context.Background())
	}()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		f.orch.Status()
		f.orch.Odds(0)
		f.orch.CombatState(0)
	}()
	select {
	case <-readDone:
	case <-time.After(2 * time.Second):
		t.Fatal("reads blocked behind the commitment fetch")
	}

	close(release)
	<-tickDone
}

func TestRecover_LedgerOutageSurfaces(t *testing.T) {
	f := newFixture(t, Config{Slots: 1, FighterCount: 2, BettingWindow: time.Minute})

	fake := ledgertest.New(time.Now())
	fake.Err = context.DeadlineExceeded
	if err := f.orch.Recover(context.Background(), fake); !apperrors.IsCode(err, apperrors.CodeLedgerUnavailable) {
		t.Fatalf("err = %v, want LEDGER_UNAVAILABLE", err)
	}
}

func TestReads_NeverBlockOnEmptySlots(t *testing.T) {
	f := newFixture(t, Config{Slots: 3, FighterCount: 4, BettingWindow: time.Minute})

	if status := f.orch.Status(); len(status) != 3 {
		t.Fatalf("len(status) = %d, want 3", len(status))
	}
	if _, err := f.orch.Odds(0); !apperrors.IsCode(err, apperrors.CodeRumbleNotFound) {
		t.Fatalf("Odds err = %v, want RUMBLE_NOT_FOUND", err)
	}
	if _, err := f.orch.CombatState(0); !apperrors.IsCode(err, apperrors.CodeRumbleNotFound) {
		t.Fatalf("CombatState err = %v, want RUMBLE_NOT_FOUND", err)
	}
	if _, err := f.orch.PayoutResult(1); !apperrors.IsCode(err, apperrors.CodeRumbleNotFound) {
		t.Fatalf("PayoutResult err = %v, want RUMBLE_NOT_FOUND", err)
	}
	if !f.orch.LastTick().IsZero() {
		t.Fatal("last tick set before any tick")
	}
}
