// Package combat resolves one duel between two declared moves.
//
// ResolveDuel is a pure function: given the two declared moves and the two
// meters it always produces the same damage and meter deltas. It performs no
// I/O and holds no state, which is what lets the orchestrator and the
// standalone verifier agree bit-for-bit with the authoritative ledger.
package combat

// Damage and meter constants. These mirror the authoritative ledger and must
// never drift from it.
const (
	HighStrikeDamage = 26
	MidStrikeDamage  = 20
	LowStrikeDamage  = 15
	CatchDamage      = 30
	CounterDamage    = 12
	SpecialDamage    = 35

	// SpecialCost is the meter required for a declared SPECIAL to execute.
	SpecialCost = 100

	// MaxHP and MaxMeter bound fighter stats.
	MaxHP    = 100
	MaxMeter = 100
)

// Result is the outcome of one duel.
type Result struct {
	DamageToA  int
	DamageToB  int
	MeterUsedA int
	MeterUsedB int
}

// ResolveDuel resolves a duel between fighter A throwing moveA with meterA
// and fighter B throwing moveB with meterB.
//
// A declared SPECIAL executes only when the actor's meter is at least
// SpecialCost; otherwise it fizzles and acts as a no-op (it is not remapped
// to any other move, and it does not dodge anything). Meter is debited only
// for specials that actually executed.
//
// DODGE beats SPECIAL. Some user-facing material describes SPECIAL as
// undodgeable; the authoritative ledger disagrees and the ledger wins.
func ResolveDuel(moveA, moveB Move, meterA, meterB int) Result {
	executedA := moveA == Special && meterA >= SpecialCost
	executedB := moveB == Special && meterB >= SpecialCost

	effectiveA := effective(moveA, executedA)
	effectiveB := effective(moveB, executedB)

	result := Result{}
	toB, backToA := attack(effectiveA, effectiveB)
	toA, backToB := attack(effectiveB, effectiveA)
	result.DamageToA = toA + backToA
	result.DamageToB = toB + backToB

	if executedA {
		result.MeterUsedA = SpecialCost
	}
	if executedB {
		result.MeterUsedB = SpecialCost
	}
	return result
}

// fizzled marks a declared SPECIAL that lacked the meter to execute. It is
// not a legal declared move; it only exists inside resolution.
const fizzled = moveCount

func effective(m Move, executed bool) Move {
	if m == Special && !executed {
		return fizzled
	}
	return m
}

// attack evaluates the attacker's declared action against the defender's and
// returns (damage dealt to the defender, counter damage taken back by the
// attacker). The two directions of a duel are evaluated independently and
// symmetrically.
func attack(attacker, defender Move) (toDefender, toAttacker int) {
	switch {
	case attacker == Special:
		if defender == Dodge {
			return 0, 0
		}
		return SpecialDamage, 0
	case attacker == Catch:
		if defender == Dodge {
			return CatchDamage, 0
		}
		return 0, 0
	case attacker.IsStrike():
		if defender == Dodge {
			return 0, 0
		}
		if defender == matchingGuard(attacker) {
			return 0, CounterDamage
		}
		return strikeDamage(attacker), 0
	default:
		// Guards, dodge, catch handled above, and fizzled specials deal
		// nothing on their own.
		return 0, 0
	}
}

func matchingGuard(strike Move) Move {
	switch strike {
	case HighStrike:
		return GuardHigh
	case MidStrike:
		return GuardMid
	case LowStrike:
		return GuardLow
	}
	return fizzled
}

func strikeDamage(strike Move) int {
	switch strike {
	case HighStrike:
		return HighStrikeDamage
	case MidStrike:
		return MidStrikeDamage
	case LowStrike:
		return LowStrikeDamage
	}
	return 0
}
