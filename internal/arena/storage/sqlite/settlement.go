package sqlite

import (
	"context"
	"fmt"
	"time"
)

// MarkSettled records a rumble's settlement, reporting whether it was
// already settled. The primary key makes the insert the atomic check.
func (s *Store) MarkSettled(ctx context.Context, rumbleID uint64, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	res, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO settlements (rumble_id, settled_at) VALUES (?, ?)
`, int64(rumbleID), at.UTC().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("mark rumble %d settled: %w", rumbleID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark rumble %d settled: %w", rumbleID, err)
	}
	return affected == 0, nil
}
