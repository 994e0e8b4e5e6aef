package lease

import (
	"context"
	"testing"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/storage"
	"github.com/ichorlabs/rumble/internal/arena/storage/storagetest"
)

func coordinatorAt(store storage.LeaseStore, ttl time.Duration, now *time.Time) *Coordinator {
	c := NewCoordinator(store, ttl)
	c.clock = func() time.Time { return *now }
	return c
}

func TestCoordinator_Exclusive(t *testing.T) {
	store := storagetest.NewMemoryStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	a := coordinatorAt(store, 30*time.Second, &now)
	b := coordinatorAt(store, 30*time.Second, &now)

	ctx := context.Background()
	if ok, err := a.Acquire(ctx); !ok || err != nil {
		t.Fatalf("a.Acquire = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := b.Acquire(ctx); ok || err != nil {
		t.Fatalf("b.Acquire while held = (%v, %v), want (false, nil)", ok, err)
	}

	// The holder extends its own lease freely.
	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("holder could not renew its own lease")
	}
}

func TestCoordinator_ExpiredLeaseTakenOver(t *testing.T) {
	store := storagetest.NewMemoryStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	a := coordinatorAt(store, 30*time.Second, &now)
	b := coordinatorAt(store, 30*time.Second, &now)

	ctx := context.Background()
	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("initial acquire failed")
	}

	now = now.Add(31 * time.Second)
	if ok, err := b.Acquire(ctx); !ok || err != nil {
		t.Fatalf("takeover of expired lease = (%v, %v), want (true, nil)", ok, err)
	}

	lease, err := b.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if lease.OwnerID != b.OwnerID() {
		t.Fatalf("lease owner = %s, want %s", lease.OwnerID, b.OwnerID())
	}
}

func TestCoordinator_ReleaseOnlyByOwner(t *testing.T) {
	store := storagetest.NewMemoryStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	a := coordinatorAt(store, 30*time.Second, &now)
	b := coordinatorAt(store, 30*time.Second, &now)

	ctx := context.Background()
	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("initial acquire failed")
	}

	// A non-owner release must not clear the lease.
	if err := b.Release(ctx); err != nil {
		t.Fatalf("non-owner Release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("lease acquired after non-owner release")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("owner Release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lease not acquirable after owner release")
	}
}

func TestCoordinator_DistinctOwnerIDs(t *testing.T) {
	store := storagetest.NewMemoryStore()
	if NewCoordinator(store, 0).OwnerID() == NewCoordinator(store, 0).OwnerID() {
		t.Fatal("two coordinators share an owner id")
	}
}
