package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/core/combat"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

const defaultTimeout = 5 * time.Second

// HTTPClient reads the ledger over its JSON indexer API.
type HTTPClient struct {
	base   string
	client *http.Client
}

// NewHTTPClient creates a client for the indexer at base (no trailing slash).
func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{
		base:   base,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

type rumbleJSON struct {
	ID            uint64   `json:"id"`
	SlotIndex     int      `json:"slot_index"`
	State         string   `json:"state"`
	Fighters      []string `json:"fighters"`
	BettingEndsAt int64    `json:"betting_ends_at"` // unix seconds
	WinnerID      string   `json:"winner_id,omitempty"`
}

type combatJSON struct {
	Turn        uint32 `json:"turn"`
	HP          []int  `json:"hp"`
	Meter       []int  `json:"meter"`
	Rank        []int  `json:"rank"`
	DamageDealt []int  `json:"damage_dealt"`
	DamageTaken []int  `json:"damage_taken"`
}

type commitmentJSON struct {
	Fighter string `json:"fighter"`
	Turn    uint32 `json:"turn"`
	Move    string `json:"move"`
}

type clockJSON struct {
	UnixNano int64 `json:"unix_nano"`
}

// SlotRumble implements Client.
func (c *HTTPClient) SlotRumble(ctx context.Context, slotIndex int) (RumbleRecord, error) {
	var raw rumbleJSON
	if err := c.get(ctx, fmt.Sprintf("/v1/slots/%d/rumble", slotIndex), &raw); err != nil {
		return RumbleRecord{}, err
	}
	return decodeRumble(raw)
}

// Rumble implements Client.
func (c *HTTPClient) Rumble(ctx context.Context, rumbleID uint64) (RumbleRecord, error) {
	var raw rumbleJSON
	if err := c.get(ctx, fmt.Sprintf("/v1/rumbles/%d", rumbleID), &raw); err != nil {
		return RumbleRecord{}, err
	}
	return decodeRumble(raw)
}

// Combat implements Client.
func (c *HTTPClient) Combat(ctx context.Context, rumbleID uint64) (CombatRecord, error) {
	var raw combatJSON
	if err := c.get(ctx, fmt.Sprintf("/v1/rumbles/%d/combat", rumbleID), &raw); err != nil {
		return CombatRecord{}, err
	}
	return CombatRecord{
		Turn:        raw.Turn,
		HP:          raw.HP,
		Meter:       raw.Meter,
		Rank:        raw.Rank,
		DamageDealt: raw.DamageDealt,
		DamageTaken: raw.DamageTaken,
	}, nil
}

// Commitments implements Client.
func (c *HTTPClient) Commitments(ctx context.Context, rumbleID uint64, turn uint32) ([]Commitment, error) {
	var raw []commitmentJSON
	if err := c.get(ctx, fmt.Sprintf("/v1/rumbles/%d/turns/%d/commitments", rumbleID, turn), &raw); err != nil {
		return nil, err
	}
	out := make([]Commitment, 0, len(raw))
	for _, cj := range raw {
		fighter, err := domain.ParseIdentity(cj.Fighter)
		if err != nil {
			return nil, fmt.Errorf("commitment fighter: %w", err)
		}
		move, err := combat.ParseMove(cj.Move)
		if err != nil {
			return nil, fmt.Errorf("commitment move: %w", err)
		}
		out = append(out, Commitment{Fighter: fighter, Turn: cj.Turn, Move: move})
	}
	return out, nil
}

// Now implements Client.
func (c *HTTPClient) Now(ctx context.Context) (time.Time, error) {
	var raw clockJSON
	if err := c.get(ctx, "/v1/clock", &raw); err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, raw.UnixNano).UTC(), nil
}

func (c *HTTPClient) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeLedgerUnavailable, "ledger unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return apperrors.New(apperrors.CodeLedgerUnavailable,
			fmt.Sprintf("ledger returned %d for %s", resp.StatusCode, path))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode ledger response for %s: %w", path, err)
	}
	return nil
}

func decodeRumble(raw rumbleJSON) (RumbleRecord, error) {
	state, err := domain.ParseRumbleState(raw.State)
	if err != nil {
		return RumbleRecord{}, err
	}

	rec := RumbleRecord{
		ID:        raw.ID,
		SlotIndex: raw.SlotIndex,
		State:     state,
	}
	if raw.BettingEndsAt != 0 {
		rec.BettingEndsAt = time.Unix(raw.BettingEndsAt, 0).UTC()
	}
	for _, f := range raw.Fighters {
		id, err := domain.ParseIdentity(f)
		if err != nil {
			return RumbleRecord{}, fmt.Errorf("rumble fighter: %w", err)
		}
		rec.Fighters = append(rec.Fighters, id)
	}
	if raw.WinnerID != "" {
		rec.WinnerID, err = domain.ParseIdentity(raw.WinnerID)
		if err != nil {
			return RumbleRecord{}, fmt.Errorf("rumble winner: %w", err)
		}
	}
	return rec, nil
}

var _ Client = (*HTTPClient)(nil)
