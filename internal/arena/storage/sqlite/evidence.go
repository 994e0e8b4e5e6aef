package sqlite

import (
	"context"
	"fmt"
	"time"
)

// MarkUsed records wager evidence, reporting whether it had already been
// consumed. The primary key makes the insert the atomic check.
func (s *Store) MarkUsed(ctx context.Context, evidence string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if evidence == "" {
		return false, fmt.Errorf("evidence is required")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO used_evidence (evidence, used_at) VALUES (?, ?)
`, evidence, time.Now().UTC().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("mark evidence used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark evidence used: %w", err)
	}
	return affected == 0, nil
}
