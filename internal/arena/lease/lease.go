// Package lease elects a single tick driver among arena replicas through a
// durable, expiring worker lease.
package lease

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/storage"
)

// DefaultTTL bounds how long a crashed driver blocks its peers.
const DefaultTTL = 30 * time.Second

// Coordinator acquires and renews the singleton worker lease. Replicas that
// fail to acquire it keep serving reads and reconciliation only.
type Coordinator struct {
	store   storage.LeaseStore
	ownerID string
	ttl     time.Duration
	clock   func() time.Time
}

// NewCoordinator creates a coordinator with a process-unique owner id.
func NewCoordinator(store storage.LeaseStore, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coordinator{
		store:   store,
		ownerID: newOwnerID(),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// newOwnerID combines hostname, pid and random bytes so two replicas on the
// same host never collide.
func newOwnerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	var buf [4]byte
	rand.Read(buf[:])
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), hex.EncodeToString(buf[:]))
}

// OwnerID returns this coordinator's identity.
func (c *Coordinator) OwnerID() string {
	return c.ownerID
}

// Acquire tries to take or extend the lease. It returns false without error
// when another live owner holds it.
func (c *Coordinator) Acquire(ctx context.Context) (bool, error) {
	now := c.clock().UTC()
	acquired, err := c.store.AcquireLease(ctx, c.ownerID, now.Add(c.ttl), now)
	if err != nil {
		return false, fmt.Errorf("acquire worker lease: %w", err)
	}
	return acquired, nil
}

// Release clears the lease if still owned. Releasing a lease taken over by
// another owner is a no-op.
func (c *Coordinator) Release(ctx context.Context) error {
	if err := c.store.ReleaseLease(ctx, c.ownerID); err != nil {
		return fmt.Errorf("release worker lease: %w", err)
	}
	return nil
}

// Current reads the lease row for diagnostics.
func (c *Coordinator) Current(ctx context.Context) (domain.WorkerLease, error) {
	return c.store.CurrentLease(ctx)
}
