// Package turn advances one rumble through a single combat turn.
//
// The engine is deterministic with respect to (rumble id, turn number,
// fighter identities, revealed commitments): pairing order and fallback
// moves are derived through the prf package, so an independent replayer
// working only from chain data reproduces every turn exactly.
package turn

import (
	"bytes"
	"sort"

	"github.com/ichorlabs/rumble/internal/core/combat"
	"github.com/ichorlabs/rumble/internal/core/prf"
)

// MeterGainPerTurn is granted to every paired survivor and the bye fighter.
const MeterGainPerTurn = 20

// Identity is a fighter's 32-byte on-chain identity.
type Identity = [32]byte

// Fighter is one combatant's mutable combat state.
type Fighter struct {
	Identity    Identity
	HP          int
	Meter       int
	Rank        int // elimination ordinal, 0 = alive or undetermined
	DamageDealt int
	DamageTaken int
}

// Alive reports whether the fighter is still in the rumble.
func (f *Fighter) Alive() bool {
	return f.HP > 0 && f.Rank == 0
}

// Commitment is a fighter's revealed move for one turn, as read from the
// authoritative ledger.
type Commitment struct {
	Move     combat.Move
	Revealed bool
}

// MoveSource records where a duel move came from.
type MoveSource string

const (
	SourceRevealed MoveSource = "revealed"
	SourceFallback MoveSource = "fallback"
)

// Duel is one resolved pairing within a turn. Indices refer to the rumble's
// fighter slice.
type Duel struct {
	IdxA, IdxB       int
	MoveA, MoveB     combat.Move
	SourceA, SourceB MoveSource
	DamageToA        int
	DamageToB        int
}

// Result is the append-only record of one resolved turn.
type Result struct {
	Turn           uint32
	Duels          []Duel
	ByeIndex       int // -1 when every alive fighter was paired
	Eliminations   []int
	RemainingAlive int
	Complete       bool
	WinnerIndex    int // meaningful only when Complete
}

// State is the combat state of one rumble between turns.
type State struct {
	RumbleID   uint64
	Turn       uint32 // next turn number to resolve, starting at 1
	Fighters   []Fighter
	Eliminated int // count of fighters with an assigned rank
}

// NewState returns the canonical initial combat state: HP 100, meter 0,
// rank 0 for every fighter.
func NewState(rumbleID uint64, identities []Identity) *State {
	fighters := make([]Fighter, len(identities))
	for i, id := range identities {
		fighters[i] = Fighter{Identity: id, HP: combat.MaxHP}
	}
	return &State{RumbleID: rumbleID, Turn: 1, Fighters: fighters}
}

// Advance resolves the next turn. Commitments are keyed by fighter identity;
// a missing or unrevealed commitment falls back to the deterministic derived
// move, so no fighter is ever silently skipped.
func (s *State) Advance(commitments map[Identity]Commitment) Result {
	result := Result{Turn: s.Turn, ByeIndex: -1}

	order := s.pairingOrder()

	// Pair consecutively; an odd fighter out gets a bye.
	for i := 0; i+1 < len(order); i += 2 {
		idxA, idxB := order[i], order[i+1]
		duel := s.resolvePair(idxA, idxB, commitments)
		result.Duels = append(result.Duels, duel)
	}
	if len(order)%2 == 1 {
		result.ByeIndex = order[len(order)-1]
	}

	// Meter gain: every paired fighter who survived the turn, and the bye
	// fighter, gain meter up to the cap.
	for _, duel := range result.Duels {
		s.gainMeter(duel.IdxA)
		s.gainMeter(duel.IdxB)
	}
	if result.ByeIndex >= 0 {
		s.gainMeter(result.ByeIndex)
	}

	// Assign elimination ranks in processing order.
	for _, idx := range order {
		f := &s.Fighters[idx]
		if f.HP <= 0 && f.Rank == 0 {
			s.Eliminated++
			f.Rank = s.Eliminated
			result.Eliminations = append(result.Eliminations, idx)
		}
	}

	result.RemainingAlive = len(s.Fighters) - s.Eliminated
	if result.RemainingAlive <= 1 {
		result.Complete = true
		result.WinnerIndex = s.winnerIndex()
	}

	s.Turn++
	return result
}

// WinnerIndex returns the fighter index of the rumble winner: the last
// survivor, or when the final duel eliminated everyone, the sole undetermined
// fighter is the one ranked last.
func (s *State) winnerIndex() int {
	winner, bestRank := -1, -1
	for i := range s.Fighters {
		f := &s.Fighters[i]
		if f.Alive() {
			return i
		}
		if f.Rank > bestRank {
			winner, bestRank = i, f.Rank
		}
	}
	return winner
}

// Placements returns 1-based placements per fighter index: the winner places
// first, and a later elimination means a better placement. Zero means the
// placement is not yet determined.
func (s *State) Placements() []int {
	placements := make([]int, len(s.Fighters))
	winner := s.winnerIndex()
	for i := range s.Fighters {
		f := &s.Fighters[i]
		switch {
		case i == winner:
			placements[i] = 1
		case f.Rank > 0:
			placements[i] = len(s.Fighters) - f.Rank + 1
		}
	}
	return placements
}

// pairingOrder sorts alive fighters by their keyed pairing hash, ties broken
// by lexicographic comparison of the raw identity bytes. The order is fully
// reproducible from public data.
func (s *State) pairingOrder() []int {
	var order []int
	for i := range s.Fighters {
		if s.Fighters[i].Alive() {
			order = append(order, i)
		}
	}
	keys := make(map[int]uint64, len(order))
	for _, idx := range order {
		keys[idx] = prf.Roll(prf.DomainPairOrder, s.RumbleID, s.Turn, s.Fighters[idx].Identity)
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keys[order[a]], keys[order[b]]
		if ka != kb {
			return ka < kb
		}
		return bytes.Compare(s.Fighters[order[a]].Identity[:], s.Fighters[order[b]].Identity[:]) < 0
	})
	return order
}

func (s *State) resolvePair(idxA, idxB int, commitments map[Identity]Commitment) Duel {
	a, b := &s.Fighters[idxA], &s.Fighters[idxB]

	moveA, sourceA := s.moveFor(a, commitments)
	moveB, sourceB := s.moveFor(b, commitments)

	resolved := combat.ResolveDuel(moveA, moveB, a.Meter, b.Meter)

	a.HP -= resolved.DamageToA
	if a.HP < 0 {
		a.HP = 0
	}
	b.HP -= resolved.DamageToB
	if b.HP < 0 {
		b.HP = 0
	}
	a.Meter -= resolved.MeterUsedA
	b.Meter -= resolved.MeterUsedB

	a.DamageDealt += resolved.DamageToB
	a.DamageTaken += resolved.DamageToA
	b.DamageDealt += resolved.DamageToA
	b.DamageTaken += resolved.DamageToB

	return Duel{
		IdxA: idxA, IdxB: idxB,
		MoveA: moveA, MoveB: moveB,
		SourceA: sourceA, SourceB: sourceB,
		DamageToA: resolved.DamageToA,
		DamageToB: resolved.DamageToB,
	}
}

// moveFor resolves a fighter's move source: a revealed, well-formed
// commitment wins; anything else derives the fallback move.
func (s *State) moveFor(f *Fighter, commitments map[Identity]Commitment) (combat.Move, MoveSource) {
	if c, ok := commitments[f.Identity]; ok && c.Revealed && c.Move.Valid() {
		return c.Move, SourceRevealed
	}
	return FallbackMove(s.RumbleID, s.Turn, f.Identity, f.Meter), SourceFallback
}

// FallbackMove derives the deterministic move used when a fighter's intended
// move was not validly revealed in time. Any third party can derive the same
// move from chain data alone.
func FallbackMove(rumbleID uint64, turn uint32, identity Identity, meter int) combat.Move {
	roll := prf.Roll(prf.DomainFallbackMove, rumbleID, turn, identity) % 100
	switch {
	case meter >= combat.SpecialCost && roll < 15:
		return combat.Special
	case roll < 67:
		strikes := [3]combat.Move{combat.HighStrike, combat.MidStrike, combat.LowStrike}
		return strikes[prf.Roll(prf.DomainFallbackStrike, rumbleID, turn, identity)%3]
	case roll < 87:
		guards := [3]combat.Move{combat.GuardHigh, combat.GuardMid, combat.GuardLow}
		return guards[prf.Roll(prf.DomainFallbackGuard, rumbleID, turn, identity)%3]
	case roll < 95:
		return combat.Dodge
	default:
		return combat.Catch
	}
}

func (s *State) gainMeter(idx int) {
	f := &s.Fighters[idx]
	if f.HP <= 0 {
		return
	}
	f.Meter += MeterGainPerTurn
	if f.Meter > combat.MaxMeter {
		f.Meter = combat.MaxMeter
	}
}
