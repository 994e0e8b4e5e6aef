package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/storage"
)

// AcquireLease takes or extends the singleton worker lease in one atomic
// upsert. The conditional update only fires when the caller already owns the
// lease or the recorded lease has expired, so two live replicas can never
// both hold it.
func (s *Store) AcquireLease(ctx context.Context, ownerID string, expiresAt, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ownerID == "" {
		return false, fmt.Errorf("owner id is required")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO worker_lease (id, owner_id, expires_at) VALUES (1, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	owner_id = excluded.owner_id,
	expires_at = excluded.expires_at
WHERE worker_lease.owner_id = excluded.owner_id OR worker_lease.expires_at <= ?
`, ownerID, expiresAt.UTC().UnixMilli(), now.UTC().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return affected > 0, nil
}

// ReleaseLease clears the lease only when still owned by ownerID.
func (s *Store) ReleaseLease(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM worker_lease WHERE id = 1 AND owner_id = ?
`, ownerID); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// CurrentLease reads the lease row.
func (s *Store) CurrentLease(ctx context.Context) (domain.WorkerLease, error) {
	if err := ctx.Err(); err != nil {
		return domain.WorkerLease{}, err
	}

	var lease domain.WorkerLease
	var expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT owner_id, expires_at FROM worker_lease WHERE id = 1
`).Scan(&lease.OwnerID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WorkerLease{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.WorkerLease{}, fmt.Errorf("read lease: %w", err)
	}
	lease.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return lease, nil
}
