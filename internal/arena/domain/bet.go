package domain

import "time"

// Lamports is the smallest SOL unit; 1 SOL = 1e9 lamports. ICHOR amounts use
// the same 9-decimal base unit.
const LamportsPerSol = 1_000_000_000

// Fee and payout basis points, out of 10_000. These mirror the authoritative
// ledger and must never drift from it.
const (
	AdminFeeBps   = 100 // 1% of gross, to the treasury
	SponsorFeeBps = 500 // 5% of gross, to the fighter owner

	TreasuryCutBps = 1_000 // 10% of the losers' pool

	FirstPlaceBps  = 7_000
	SecondPlaceBps = 2_000
	ThirdPlaceBps  = 1_000

	BpsDenominator = 10_000
)

// PayoutStatus is the settlement status of one bet.
type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending" // rumble not settled yet
	PayoutWon     PayoutStatus = "won"     // settled, claimable amount recorded
	PayoutLost    PayoutStatus = "lost"    // settled, nothing to claim
	PayoutClaimed PayoutStatus = "claimed" // claim instruction handed out
)

// Bet is one admitted wager. Immutable after creation except PayoutAmount
// and PayoutStatus, written exactly once by the payout engine.
type Bet struct {
	ID           int64
	RumbleID     uint64
	Bettor       Identity
	FighterID    Identity
	Gross        uint64
	Net          uint64
	AdminFee     uint64
	SponsorFee   uint64
	Evidence     string
	PlacedAt     time.Time
	PayoutAmount uint64
	PayoutStatus PayoutStatus
}

// WorkerLease is the singleton row that makes one process the tick driver.
// At most one non-expired lease exists at any time.
type WorkerLease struct {
	OwnerID   string
	ExpiresAt time.Time
}

// ShowerPool is the singleton ichor shower accumulator.
type ShowerPool struct {
	PoolAmount          uint64
	LastTriggerRumbleID uint64
	LastWinnerWallet    Identity
	LastPayout          uint64
}
