package verifier

import (
	"context"
	"fmt"

	"github.com/ichorlabs/rumble/internal/arena/ledger"
)

// Run fetches a rumble's authoritative records and commitments, replays the
// full combat history locally and diffs the result. The ledger client is a
// transport only; nothing it returns influences how turns are resolved.
func Run(ctx context.Context, client ledger.Client, rumbleID uint64) (Report, error) {
	rec, err := client.Rumble(ctx, rumbleID)
	if err != nil {
		return Report{}, fmt.Errorf("fetch rumble %d: %w", rumbleID, err)
	}
	combat, err := client.Combat(ctx, rumbleID)
	if err != nil {
		return Report{}, fmt.Errorf("fetch combat for rumble %d: %w", rumbleID, err)
	}

	fighters := make([][32]byte, len(rec.Fighters))
	copy(fighters, rec.Fighters)

	turns := make([]map[[32]byte]Move, combat.Turn)
	for t := uint32(1); t <= combat.Turn; t++ {
		revealed, err := client.Commitments(ctx, rumbleID, t)
		if err != nil {
			return Report{}, fmt.Errorf("fetch commitments for turn %d: %w", t, err)
		}
		moves := make(map[[32]byte]Move, len(revealed))
		for _, c := range revealed {
			move, ok := ParseMove(c.Move.String())
			if !ok {
				return Report{}, fmt.Errorf("turn %d: unknown move %q", t, c.Move.String())
			}
			moves[c.Fighter] = move
		}
		turns[t-1] = moves
	}

	computed := Replay(rumbleID, fighters, turns)
	return Diff(rumbleID, int(combat.Turn), computed, Authoritative{
		HP:          combat.HP,
		Meter:       combat.Meter,
		Rank:        combat.Rank,
		DamageDealt: combat.DamageDealt,
		DamageTaken: combat.DamageTaken,
	})
}
