package verifier

import (
	"context"
	"testing"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/ledger"
	"github.com/ichorlabs/rumble/internal/arena/ledger/ledgertest"
	"github.com/ichorlabs/rumble/internal/core/combat"
	"github.com/ichorlabs/rumble/internal/core/turn"
)

func fighterSet(n int) [][32]byte {
	fighters := make([][32]byte, n)
	for i := range fighters {
		fighters[i][0] = byte(i + 1)
		fighters[i][7] = byte(37 * (i + 1))
	}
	return fighters
}

// runEngine drives the arena's turn engine to completion with fallback moves
// only and returns its state plus the number of resolved turns.
func runEngine(rumbleID uint64, fighters [][32]byte) (*turn.State, int) {
	state := turn.NewState(rumbleID, fighters)
	turns := 0
	for {
		res := state.Advance(nil)
		turns++
		if res.Complete {
			return state, turns
		}
	}
}

func authoritativeFrom(state *turn.State) Authoritative {
	n := len(state.Fighters)
	auth := Authoritative{
		HP:          make([]int, n),
		Meter:       make([]int, n),
		Rank:        make([]int, n),
		DamageDealt: make([]int, n),
		DamageTaken: make([]int, n),
	}
	for i, f := range state.Fighters {
		auth.HP[i] = f.HP
		auth.Meter[i] = f.Meter
		auth.Rank[i] = f.Rank
		auth.DamageDealt[i] = f.DamageDealt
		auth.DamageTaken[i] = f.DamageTaken
	}
	return auth
}

func TestReplay_AgreesWithIndependentEngine(t *testing.T) {
	for _, rumbleID := range []uint64{1, 77, 4096, 900001} {
		fighters := fighterSet(8)
		engineState, turns := runEngine(rumbleID, fighters)

		computed := Replay(rumbleID, fighters, make([]map[[32]byte]Move, turns))
		report, err := Diff(rumbleID, turns, computed, authoritativeFrom(engineState))
		if err != nil {
			t.Fatalf("rumble %d: Diff: %v", rumbleID, err)
		}
		if !report.OK() {
			t.Fatalf("rumble %d: %d mismatches after %d turns: %+v",
				rumbleID, len(report.Mismatches), turns, report.Mismatches)
		}
	}
}

func TestReplay_HonorsRevealedCommitments(t *testing.T) {
	const rumbleID = 5
	fighters := fighterSet(2)

	// First turn: both reveal; the high strike lands into the wrong guard.
	commitments := map[turn.Identity]turn.Commitment{
		fighters[0]: {Move: combat.HighStrike, Revealed: true},
		fighters[1]: {Move: combat.GuardLow, Revealed: true},
	}
	engineState := turn.NewState(rumbleID, fighters)
	engineState.Advance(commitments)

	replayTurns := []map[[32]byte]Move{{
		fighters[0]: MoveHighStrike,
		fighters[1]: MoveGuardLow,
	}}
	computed := Replay(rumbleID, fighters, replayTurns)

	for i := range fighters {
		if computed[i].HP != engineState.Fighters[i].HP {
			t.Fatalf("fighter %d hp = %d, engine has %d", i, computed[i].HP, engineState.Fighters[i].HP)
		}
		if computed[i].DamageDealt != engineState.Fighters[i].DamageDealt {
			t.Fatalf("fighter %d dealt = %d, engine has %d", i, computed[i].DamageDealt, engineState.Fighters[i].DamageDealt)
		}
	}
}

func TestDiff_ReportsPerFieldMismatches(t *testing.T) {
	fighters := fighterSet(4)
	engineState, turns := runEngine(9, fighters)
	computed := Replay(9, fighters, make([]map[[32]byte]Move, turns))

	auth := authoritativeFrom(engineState)
	auth.HP[2] += 5
	auth.Rank[0] = 99

	report, err := Diff(9, turns, computed, auth)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if report.OK() {
		t.Fatal("tampered arrays passed verification")
	}
	if len(report.Mismatches) != 2 {
		t.Fatalf("mismatches = %+v, want exactly 2", report.Mismatches)
	}
	fields := map[string]bool{}
	for _, m := range report.Mismatches {
		fields[m.Field] = true
	}
	if !fields["hp"] || !fields["rank"] {
		t.Fatalf("mismatch fields = %v, want hp and rank", fields)
	}
}

func TestDiff_RejectsShortArrays(t *testing.T) {
	computed := Replay(1, fighterSet(4), nil)
	if _, err := Diff(1, 0, computed, Authoritative{}); err == nil {
		t.Fatal("short authoritative arrays accepted")
	}
}

func TestRun_AgainstLedger(t *testing.T) {
	const rumbleID = 31
	fighters := fighterSet(6)
	engineState, turns := runEngine(rumbleID, fighters)

	fake := ledgertest.New(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	fake.SetRumble(ledger.RumbleRecord{
		ID:       rumbleID,
		Fighters: fighters,
		State:    domain.StateComplete,
	})
	auth := authoritativeFrom(engineState)
	fake.SetCombat(rumbleID, ledger.CombatRecord{
		Turn:        uint32(turns),
		HP:          auth.HP,
		Meter:       auth.Meter,
		Rank:        auth.Rank,
		DamageDealt: auth.DamageDealt,
		DamageTaken: auth.DamageTaken,
	})

	report, err := Run(context.Background(), fake, rumbleID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.OK() {
		t.Fatalf("replay disagreed with ledger: %+v", report.Mismatches)
	}
	if report.Turns != turns || report.Fighters != 6 {
		t.Fatalf("report = %+v, want %d turns over 6 fighters", report, turns)
	}
}
