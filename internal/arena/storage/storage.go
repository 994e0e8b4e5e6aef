// Package storage defines the durable persistence contracts for the arena.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// BetStore persists admitted bets and their settlement.
type BetStore interface {
	PutBet(ctx context.Context, bet domain.Bet) (int64, error)
	ListBetsByRumble(ctx context.Context, rumbleID uint64) ([]domain.Bet, error)
	ListSettledBetsByWallet(ctx context.Context, wallet domain.Identity) ([]domain.Bet, error)
	// SettleBet writes payout amount and status exactly once; settling an
	// already-settled bet is an error.
	SettleBet(ctx context.Context, betID int64, amount uint64, status domain.PayoutStatus) error
	MarkBetClaimed(ctx context.Context, betID int64) error
}

// EvidenceStore is the durable replay-guard layer. MarkUsed records the
// evidence and reports whether it had already been consumed.
type EvidenceStore interface {
	MarkUsed(ctx context.Context, evidence string) (alreadyUsed bool, err error)
}

// LeaseStore persists the singleton worker lease.
type LeaseStore interface {
	// AcquireLease succeeds when no lease exists, the existing lease is
	// expired, or it is already owned by ownerID; it extends the expiry.
	AcquireLease(ctx context.Context, ownerID string, expiresAt, now time.Time) (bool, error)
	// ReleaseLease clears the lease only when still owned by ownerID.
	ReleaseLease(ctx context.Context, ownerID string) error
	CurrentLease(ctx context.Context) (domain.WorkerLease, error)
}

// ShowerStore persists the singleton ichor shower pool.
type ShowerStore interface {
	ShowerPool(ctx context.Context) (domain.ShowerPool, error)
	SaveShowerPool(ctx context.Context, pool domain.ShowerPool) error
}

// SettlementStore records which rumbles have been settled, making the payout
// engine idempotent across restarts.
type SettlementStore interface {
	// MarkSettled records the settlement and reports whether the rumble was
	// already settled.
	MarkSettled(ctx context.Context, rumbleID uint64, at time.Time) (alreadySettled bool, err error)
}

// Store aggregates every durable concern of the arena service.
type Store interface {
	BetStore
	EvidenceStore
	LeaseStore
	ShowerStore
	SettlementStore
}
