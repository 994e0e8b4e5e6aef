package combat

import "fmt"

// Move is one of the nine moves a fighter can throw in a duel.
type Move uint8

const (
	HighStrike Move = iota
	MidStrike
	LowStrike
	GuardHigh
	GuardMid
	GuardLow
	Dodge
	Catch
	Special

	// moveCount is the number of legal moves.
	moveCount
)

var moveNames = [moveCount]string{
	HighStrike: "HIGH_STRIKE",
	MidStrike:  "MID_STRIKE",
	LowStrike:  "LOW_STRIKE",
	GuardHigh:  "GUARD_HIGH",
	GuardMid:   "GUARD_MID",
	GuardLow:   "GUARD_LOW",
	Dodge:      "DODGE",
	Catch:      "CATCH",
	Special:    "SPECIAL",
}

// String returns the wire name of the move.
func (m Move) String() string {
	if !m.Valid() {
		return fmt.Sprintf("MOVE(%d)", uint8(m))
	}
	return moveNames[m]
}

// Valid reports whether m is one of the nine legal moves.
func (m Move) Valid() bool {
	return m < moveCount
}

// IsStrike reports whether m is one of the three strikes.
func (m Move) IsStrike() bool {
	return m == HighStrike || m == MidStrike || m == LowStrike
}

// IsGuard reports whether m is one of the three guards.
func (m Move) IsGuard() bool {
	return m == GuardHigh || m == GuardMid || m == GuardLow
}

// ParseMove parses a wire move name.
func ParseMove(name string) (Move, error) {
	for m, n := range moveNames {
		if n == name {
			return Move(m), nil
		}
	}
	return 0, fmt.Errorf("unknown move %q", name)
}

// Moves returns all legal moves in declaration order.
func Moves() []Move {
	moves := make([]Move, moveCount)
	for i := range moves {
		moves[i] = Move(i)
	}
	return moves
}
