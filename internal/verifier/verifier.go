// Package verifier independently replays a rumble's combat history and diffs
// the result against the authoritative ledger.
//
// The verifier is a correctness oracle, not a participant: apart from the prf
// hashing contract it shares no combat code with the arena service. Pairing,
// fallback moves and damage resolution are implemented here from the chain
// program's rules, so a bug in the arena's engine cannot hide behind shared
// code.
package verifier

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ichorlabs/rumble/internal/core/prf"
)

// Move codes, matching the chain program's move encoding.
type Move uint8

const (
	MoveHighStrike Move = iota
	MoveMidStrike
	MoveLowStrike
	MoveGuardHigh
	MoveGuardMid
	MoveGuardLow
	MoveDodge
	MoveCatch
	MoveSpecial

	moveInvalid
)

var moveByName = map[string]Move{
	"HIGH_STRIKE": MoveHighStrike,
	"MID_STRIKE":  MoveMidStrike,
	"LOW_STRIKE":  MoveLowStrike,
	"GUARD_HIGH":  MoveGuardHigh,
	"GUARD_MID":   MoveGuardMid,
	"GUARD_LOW":   MoveGuardLow,
	"DODGE":       MoveDodge,
	"CATCH":       MoveCatch,
	"SPECIAL":     MoveSpecial,
}

// ParseMove parses a wire move name.
func ParseMove(name string) (Move, bool) {
	m, ok := moveByName[name]
	return m, ok
}

// Combat tuning constants, from the chain program.
const (
	maxHP       = 100
	maxMeter    = 100
	meterGain   = 20
	specialCost = 100

	damageHigh    = 26
	damageMid     = 20
	damageLow     = 15
	damageCatch   = 30
	damageCounter = 12
	damageSpecial = 35
)

// FighterState is one fighter's replayed end state.
type FighterState struct {
	HP          int
	Meter       int
	Rank        int
	DamageDealt int
	DamageTaken int
}

// Replay runs the full combat history from the canonical initial state.
// turns holds, per resolved turn, the revealed commitments keyed by fighter
// identity; fighters without an entry play their derived fallback move.
// Replay stops after the supplied turns or when at most one fighter remains.
func Replay(rumbleID uint64, fighters [][32]byte, turns []map[[32]byte]Move) []FighterState {
	state := make([]FighterState, len(fighters))
	for i := range state {
		state[i] = FighterState{HP: maxHP}
	}

	eliminated := 0
	for t := 0; t < len(turns) && len(fighters)-eliminated > 1; t++ {
		turnNumber := uint32(t + 1)
		order := pairingOrder(rumbleID, turnNumber, fighters, state)

		for i := 0; i+1 < len(order); i += 2 {
			a, b := order[i], order[i+1]
			moveA := committedOrFallback(rumbleID, turnNumber, fighters[a], state[a].Meter, turns[t])
			moveB := committedOrFallback(rumbleID, turnNumber, fighters[b], state[b].Meter, turns[t])
			resolve(&state[a], &state[b], moveA, moveB)
		}

		// Meter gain for every paired survivor and the bye fighter.
		for _, idx := range order {
			if state[idx].HP > 0 {
				state[idx].Meter += meterGain
				if state[idx].Meter > maxMeter {
					state[idx].Meter = maxMeter
				}
			}
		}

		for _, idx := range order {
			if state[idx].HP <= 0 && state[idx].Rank == 0 {
				eliminated++
				state[idx].Rank = eliminated
			}
		}
	}
	return state
}

// pairingOrder sorts alive fighters by their turn-keyed hash, identity bytes
// breaking ties.
func pairingOrder(rumbleID uint64, turnNumber uint32, fighters [][32]byte, state []FighterState) []int {
	var order []int
	for i := range fighters {
		if state[i].HP > 0 && state[i].Rank == 0 {
			order = append(order, i)
		}
	}
	keys := make([]uint64, len(fighters))
	for _, idx := range order {
		keys[idx] = prf.Roll(prf.DomainPairOrder, rumbleID, turnNumber, fighters[idx])
	}
	sort.SliceStable(order, func(a, b int) bool {
		if keys[order[a]] != keys[order[b]] {
			return keys[order[a]] < keys[order[b]]
		}
		return bytes.Compare(fighters[order[a]][:], fighters[order[b]][:]) < 0
	})
	return order
}

func committedOrFallback(rumbleID uint64, turnNumber uint32, fighter [32]byte, meter int, commitments map[[32]byte]Move) Move {
	if m, ok := commitments[fighter]; ok && m < moveInvalid {
		return m
	}
	return fallbackMove(rumbleID, turnNumber, fighter, meter)
}

// fallbackMove derives the move for an unrevealed commitment: 15% special
// when affordable, then 67% strike, 20% guard, 8% dodge, 5% catch.
func fallbackMove(rumbleID uint64, turnNumber uint32, fighter [32]byte, meter int) Move {
	roll := prf.Roll(prf.DomainFallbackMove, rumbleID, turnNumber, fighter) % 100
	switch {
	case meter >= specialCost && roll < 15:
		return MoveSpecial
	case roll < 67:
		return Move(prf.Roll(prf.DomainFallbackStrike, rumbleID, turnNumber, fighter) % 3) // HIGH/MID/LOW in code order
	case roll < 87:
		return MoveGuardHigh + Move(prf.Roll(prf.DomainFallbackGuard, rumbleID, turnNumber, fighter)%3)
	case roll < 95:
		return MoveDodge
	default:
		return MoveCatch
	}
}

// resolve applies one duel to both fighters' states.
func resolve(a, b *FighterState, moveA, moveB Move) {
	executedA := moveA == MoveSpecial && a.Meter >= specialCost
	executedB := moveB == MoveSpecial && b.Meter >= specialCost

	toB, counterToA := hit(moveA, executedA, moveB, executedB)
	toA, counterToB := hit(moveB, executedB, moveA, executedA)

	damageA := toA + counterToA
	damageB := toB + counterToB

	a.HP -= damageA
	if a.HP < 0 {
		a.HP = 0
	}
	b.HP -= damageB
	if b.HP < 0 {
		b.HP = 0
	}
	if executedA {
		a.Meter -= specialCost
	}
	if executedB {
		b.Meter -= specialCost
	}

	a.DamageDealt += damageB
	a.DamageTaken += damageA
	b.DamageDealt += damageA
	b.DamageTaken += damageB
}

// hit evaluates one direction of a duel: the attacker's declared move against
// the defender's. It returns the damage landed on the defender and any
// counter damage the attacker takes back. A special without the meter to
// execute does nothing, but it is not a dodge either.
func hit(attacker Move, attackerExecuted bool, defender Move, defenderExecuted bool) (toDefender, toAttacker int) {
	defenderDodges := defender == MoveDodge

	switch attacker {
	case MoveSpecial:
		if !attackerExecuted {
			return 0, 0
		}
		if defenderDodges {
			return 0, 0
		}
		return damageSpecial, 0
	case MoveCatch:
		if defenderDodges {
			return damageCatch, 0
		}
		return 0, 0
	case MoveHighStrike, MoveMidStrike, MoveLowStrike:
		if defenderDodges {
			return 0, 0
		}
		if guardBlocks(attacker, defender) {
			return 0, damageCounter
		}
		return strikeDamage(attacker), 0
	default:
		return 0, 0
	}
}

func guardBlocks(strike, guard Move) bool {
	switch strike {
	case MoveHighStrike:
		return guard == MoveGuardHigh
	case MoveMidStrike:
		return guard == MoveGuardMid
	case MoveLowStrike:
		return guard == MoveGuardLow
	}
	return false
}

func strikeDamage(strike Move) int {
	switch strike {
	case MoveHighStrike:
		return damageHigh
	case MoveMidStrike:
		return damageMid
	case MoveLowStrike:
		return damageLow
	}
	return 0
}

// Authoritative holds the ledger's final per-fighter arrays, indexed by
// fighter position within the rumble.
type Authoritative struct {
	HP          []int
	Meter       []int
	Rank        []int
	DamageDealt []int
	DamageTaken []int
}

// Mismatch is one field where the replay disagrees with the ledger.
type Mismatch struct {
	FighterIndex  int
	Field         string
	Computed      int
	Authoritative int
}

// Report is the outcome of one verification.
type Report struct {
	RumbleID   uint64
	Fighters   int
	Turns      int
	Mismatches []Mismatch
}

// OK reports whether the replay agreed with the ledger on every field.
func (r Report) OK() bool {
	return len(r.Mismatches) == 0
}

// Diff compares the replayed state against the authoritative arrays,
// field by field.
func Diff(rumbleID uint64, turns int, computed []FighterState, auth Authoritative) (Report, error) {
	report := Report{RumbleID: rumbleID, Fighters: len(computed), Turns: turns}

	for _, arr := range [][]int{auth.HP, auth.Meter, auth.Rank, auth.DamageDealt, auth.DamageTaken} {
		if len(arr) != len(computed) {
			return Report{}, fmt.Errorf("authoritative arrays cover %d fighters, replay has %d", len(arr), len(computed))
		}
	}

	for i, f := range computed {
		report.compare(i, "hp", f.HP, auth.HP[i])
		report.compare(i, "meter", f.Meter, auth.Meter[i])
		report.compare(i, "rank", f.Rank, auth.Rank[i])
		report.compare(i, "damage_dealt", f.DamageDealt, auth.DamageDealt[i])
		report.compare(i, "damage_taken", f.DamageTaken, auth.DamageTaken[i])
	}
	return report, nil
}

func (r *Report) compare(fighter int, field string, computed, authoritative int) {
	if computed != authoritative {
		r.Mismatches = append(r.Mismatches, Mismatch{
			FighterIndex:  fighter,
			Field:         field,
			Computed:      computed,
			Authoritative: authoritative,
		})
	}
}
