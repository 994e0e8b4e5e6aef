// Package storagetest provides an in-memory Store for tests.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/storage"
)

// MemoryStore implements storage.Store entirely in memory.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	bets     map[int64]domain.Bet
	evidence map[string]struct{}
	lease    *domain.WorkerLease
	shower   domain.ShowerPool
	settled  map[uint64]time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		bets:     make(map[int64]domain.Bet),
		evidence: make(map[string]struct{}),
		settled:  make(map[uint64]time.Time),
	}
}

func (s *MemoryStore) PutBet(_ context.Context, bet domain.Bet) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet.ID = s.nextID
	s.nextID++
	if bet.PayoutStatus == "" {
		bet.PayoutStatus = domain.PayoutPending
	}
	s.bets[bet.ID] = bet
	return bet.ID, nil
}

func (s *MemoryStore) ListBetsByRumble(_ context.Context, rumbleID uint64) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, bet := range s.bets {
		if bet.RumbleID == rumbleID {
			out = append(out, bet)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *MemoryStore) ListSettledBetsByWallet(_ context.Context, wallet domain.Identity) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, bet := range s.bets {
		if bet.Bettor != wallet {
			continue
		}
		if bet.PayoutStatus == domain.PayoutWon || bet.PayoutStatus == domain.PayoutLost {
			out = append(out, bet)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *MemoryStore) SettleBet(_ context.Context, betID int64, amount uint64, status domain.PayoutStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet, ok := s.bets[betID]
	if !ok {
		return storage.ErrNotFound
	}
	if bet.PayoutStatus != domain.PayoutPending {
		return fmt.Errorf("bet %d already settled as %s", betID, bet.PayoutStatus)
	}
	bet.PayoutAmount = amount
	bet.PayoutStatus = status
	s.bets[betID] = bet
	return nil
}

func (s *MemoryStore) MarkBetClaimed(_ context.Context, betID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet, ok := s.bets[betID]
	if !ok {
		return storage.ErrNotFound
	}
	bet.PayoutStatus = domain.PayoutClaimed
	s.bets[betID] = bet
	return nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, evidence string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evidence[evidence]; ok {
		return true, nil
	}
	s.evidence[evidence] = struct{}{}
	return false, nil
}

func (s *MemoryStore) AcquireLease(_ context.Context, ownerID string, expiresAt, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lease != nil && s.lease.OwnerID != ownerID && s.lease.ExpiresAt.After(now) {
		return false, nil
	}
	s.lease = &domain.WorkerLease{OwnerID: ownerID, ExpiresAt: expiresAt}
	return true, nil
}

func (s *MemoryStore) ReleaseLease(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lease != nil && s.lease.OwnerID == ownerID {
		s.lease = nil
	}
	return nil
}

func (s *MemoryStore) CurrentLease(_ context.Context) (domain.WorkerLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lease == nil {
		return domain.WorkerLease{}, storage.ErrNotFound
	}
	return *s.lease, nil
}

func (s *MemoryStore) ShowerPool(_ context.Context) (domain.ShowerPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shower, nil
}

func (s *MemoryStore) SaveShowerPool(_ context.Context, pool domain.ShowerPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shower = pool
	return nil
}

func (s *MemoryStore) MarkSettled(_ context.Context, rumbleID uint64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settled[rumbleID]; ok {
		return true, nil
	}
	s.settled[rumbleID] = at
	return false, nil
}

// Bet returns a bet by id for assertions.
func (s *MemoryStore) Bet(betID int64) (domain.Bet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet, ok := s.bets[betID]
	return bet, ok
}

var _ storage.Store = (*MemoryStore)(nil)
