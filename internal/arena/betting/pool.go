// Package betting implements the parimutuel pool bookkeeping for one rumble:
// fee splits, per-fighter stakes and live odds.
package betting

import (
	"sync"

	"github.com/ichorlabs/rumble/internal/arena/domain"
)

// Default bet bounds in lamports.
const (
	DefaultMinBet = domain.LamportsPerSol / 1000 // 0.001 SOL
	DefaultMaxBet = 100 * domain.LamportsPerSol  // 100 SOL
)

// Split computes the deterministic gross → net/admin/sponsor split applied
// at admission. Fees are netted once, at bet time; the payout engine never
// re-deducts them.
func Split(gross uint64) (net, adminFee, sponsorFee uint64) {
	adminFee = gross * domain.AdminFeeBps / domain.BpsDenominator
	sponsorFee = gross * domain.SponsorFeeBps / domain.BpsDenominator
	net = gross - adminFee - sponsorFee
	return net, adminFee, sponsorFee
}

// Odds is one fighter's live market view.
type Odds struct {
	FighterID          domain.Identity
	Deployed           uint64
	ImpliedProbability float64
	PotentialReturn    float64
}

// Pool tracks net stakes per fighter for one rumble. It is safe for
// concurrent use: bet admission happens on request goroutines while the
// scheduler reads it on ticks.
type Pool struct {
	mu       sync.Mutex
	rumbleID uint64
	fighters []domain.Identity
	deployed map[domain.Identity]uint64
	total    uint64
}

// NewPool creates an empty pool over the rumble's fighters.
func NewPool(rumbleID uint64, fighters []domain.Identity) *Pool {
	return &Pool{
		rumbleID: rumbleID,
		fighters: fighters,
		deployed: make(map[domain.Identity]uint64, len(fighters)),
	}
}

// RumbleID returns the rumble this pool belongs to.
func (p *Pool) RumbleID() uint64 {
	return p.rumbleID
}

// AddStake credits a net stake to a fighter's pool.
func (p *Pool) AddStake(fighter domain.Identity, net uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deployed[fighter] += net
	p.total += net
}

// Total returns the total net pool.
func (p *Pool) Total() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Deployed returns a fighter's net stake.
func (p *Pool) Deployed(fighter domain.Identity) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deployed[fighter]
}

// Odds computes the live market view for every fighter. With an empty pool
// the implied probabilities default to an equal split and the potential
// return to the fighter count, guarding the division by zero.
func (p *Pool) Odds() []Odds {
	p.mu.Lock()
	defer p.mu.Unlock()

	odds := make([]Odds, len(p.fighters))
	for i, fighter := range p.fighters {
		deployed := p.deployed[fighter]
		o := Odds{FighterID: fighter, Deployed: deployed}
		switch {
		case p.total == 0 || deployed == 0:
			o.ImpliedProbability = 1 / float64(len(p.fighters))
			o.PotentialReturn = float64(len(p.fighters))
		default:
			o.ImpliedProbability = float64(deployed) / float64(p.total)
			o.PotentialReturn = float64(p.total) / float64(deployed)
		}
		odds[i] = o
	}
	return odds
}
