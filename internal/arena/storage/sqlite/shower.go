package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ichorlabs/rumble/internal/arena/domain"
)

// ShowerPool reads the singleton shower accumulator. A missing row is the
// empty pool, not an error.
func (s *Store) ShowerPool(ctx context.Context) (domain.ShowerPool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ShowerPool{}, err
	}

	var pool domain.ShowerPool
	var amount, lastRumble, lastPayout int64
	var lastWinner string
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT pool_amount, last_trigger_rumble_id, last_winner_wallet, last_payout
FROM shower_pool WHERE id = 1
`).Scan(&amount, &lastRumble, &lastWinner, &lastPayout)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ShowerPool{}, nil
	}
	if err != nil {
		return domain.ShowerPool{}, fmt.Errorf("read shower pool: %w", err)
	}

	pool.PoolAmount = uint64(amount)
	pool.LastTriggerRumbleID = uint64(lastRumble)
	pool.LastPayout = uint64(lastPayout)
	if lastWinner != "" {
		if pool.LastWinnerWallet, err = domain.ParseIdentity(lastWinner); err != nil {
			return domain.ShowerPool{}, fmt.Errorf("read shower pool winner: %w", err)
		}
	}
	return pool, nil
}

// SaveShowerPool upserts the singleton shower accumulator.
func (s *Store) SaveShowerPool(ctx context.Context, pool domain.ShowerPool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	winner := ""
	if pool.LastWinnerWallet != (domain.Identity{}) {
		winner = domain.HexIdentity(pool.LastWinnerWallet)
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO shower_pool (id, pool_amount, last_trigger_rumble_id, last_winner_wallet, last_payout)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	pool_amount = excluded.pool_amount,
	last_trigger_rumble_id = excluded.last_trigger_rumble_id,
	last_winner_wallet = excluded.last_winner_wallet,
	last_payout = excluded.last_payout
`, int64(pool.PoolAmount), int64(pool.LastTriggerRumbleID), winner, int64(pool.LastPayout)); err != nil {
		return fmt.Errorf("save shower pool: %w", err)
	}
	return nil
}
