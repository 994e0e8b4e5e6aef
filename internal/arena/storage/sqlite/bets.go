package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/storage"
)

const betColumns = `
	id,
	rumble_id,
	bettor,
	fighter,
	gross,
	net,
	admin_fee,
	sponsor_fee,
	evidence,
	placed_at,
	payout_amount,
	payout_status
`

// PutBet persists one admitted bet and returns its row id.
func (s *Store) PutBet(ctx context.Context, bet domain.Bet) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if bet.PlacedAt.IsZero() {
		bet.PlacedAt = time.Now().UTC()
	}
	if bet.PayoutStatus == "" {
		bet.PayoutStatus = domain.PayoutPending
	}

	res, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO bets (
	rumble_id,
	bettor,
	fighter,
	gross,
	net,
	admin_fee,
	sponsor_fee,
	evidence,
	placed_at,
	payout_amount,
	payout_status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		int64(bet.RumbleID),
		domain.HexIdentity(bet.Bettor),
		domain.HexIdentity(bet.FighterID),
		int64(bet.Gross),
		int64(bet.Net),
		int64(bet.AdminFee),
		int64(bet.SponsorFee),
		bet.Evidence,
		bet.PlacedAt.UTC().UnixMilli(),
		int64(bet.PayoutAmount),
		string(bet.PayoutStatus),
	)
	if err != nil {
		return 0, fmt.Errorf("put bet: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("put bet id: %w", err)
	}
	return id, nil
}

// ListBetsByRumble returns a rumble's bets in admission order.
func (s *Store) ListBetsByRumble(ctx context.Context, rumbleID uint64) ([]domain.Bet, error) {
	return s.listBets(ctx, `
SELECT `+betColumns+`
FROM bets
WHERE rumble_id = ?
ORDER BY id ASC
`, int64(rumbleID))
}

// ListSettledBetsByWallet returns a wallet's settled (won or lost) bets.
func (s *Store) ListSettledBetsByWallet(ctx context.Context, wallet domain.Identity) ([]domain.Bet, error) {
	return s.listBets(ctx, `
SELECT `+betColumns+`
FROM bets
WHERE bettor = ? AND payout_status IN (?, ?)
ORDER BY id ASC
`, domain.HexIdentity(wallet), string(domain.PayoutWon), string(domain.PayoutLost))
}

// SettleBet writes payout amount and status exactly once per bet.
func (s *Store) SettleBet(ctx context.Context, betID int64, amount uint64, status domain.PayoutStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE bets
SET payout_amount = ?, payout_status = ?
WHERE id = ? AND payout_status = ?
`, int64(amount), string(status), betID, string(domain.PayoutPending))
	if err != nil {
		return fmt.Errorf("settle bet %d: %w", betID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle bet %d: %w", betID, err)
	}
	if affected == 0 {
		return fmt.Errorf("settle bet %d: bet missing or already settled", betID)
	}
	return nil
}

// MarkBetClaimed moves a won bet to claimed.
func (s *Store) MarkBetClaimed(ctx context.Context, betID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE bets
SET payout_status = ?
WHERE id = ? AND payout_status = ?
`, string(domain.PayoutClaimed), betID, string(domain.PayoutWon))
	if err != nil {
		return fmt.Errorf("mark bet %d claimed: %w", betID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark bet %d claimed: %w", betID, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) listBets(ctx context.Context, query string, args ...any) ([]domain.Bet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, bet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bets: %w", err)
	}
	return bets, nil
}

func scanBet(rows *sql.Rows) (domain.Bet, error) {
	var bet domain.Bet
	var rumbleID, gross, net, adminFee, sponsorFee, placedAt, payoutAmount int64
	var bettor, fighter, status string
	if err := rows.Scan(
		&bet.ID,
		&rumbleID,
		&bettor,
		&fighter,
		&gross,
		&net,
		&adminFee,
		&sponsorFee,
		&bet.Evidence,
		&placedAt,
		&payoutAmount,
		&status,
	); err != nil {
		return domain.Bet{}, fmt.Errorf("scan bet: %w", err)
	}

	var err error
	if bet.Bettor, err = domain.ParseIdentity(bettor); err != nil {
		return domain.Bet{}, fmt.Errorf("scan bet bettor: %w", err)
	}
	if bet.FighterID, err = domain.ParseIdentity(fighter); err != nil {
		return domain.Bet{}, fmt.Errorf("scan bet fighter: %w", err)
	}

	bet.RumbleID = uint64(rumbleID)
	bet.Gross = uint64(gross)
	bet.Net = uint64(net)
	bet.AdminFee = uint64(adminFee)
	bet.SponsorFee = uint64(sponsorFee)
	bet.PlacedAt = time.UnixMilli(placedAt).UTC()
	bet.PayoutAmount = uint64(payoutAmount)
	bet.PayoutStatus = domain.PayoutStatus(status)
	return bet, nil
}
