package app

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ichorlabs/rumble/internal/arena/auth"
	"github.com/ichorlabs/rumble/internal/arena/domain"
	"github.com/ichorlabs/rumble/internal/arena/scheduler"
	apperrors "github.com/ichorlabs/rumble/internal/platform/errors"
)

// Handler builds the arena HTTP API.
func (rt *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/bets", rt.handlePlaceBet)
	mux.HandleFunc("POST /api/queue", rt.handleEnqueue)
	mux.HandleFunc("GET /api/status", rt.handleStatus)
	mux.HandleFunc("GET /api/slots/{index}/betting", rt.handleBettingInfo)
	mux.HandleFunc("GET /api/slots/{index}/combat", rt.handleCombatState)
	mux.HandleFunc("GET /api/rumbles/{id}/payout", rt.handlePayoutResult)
	mux.HandleFunc("POST /api/claims/prepare", rt.handlePrepareClaim)
	mux.HandleFunc("GET /ws/feed", rt.handleFeed)
	mux.HandleFunc("GET /healthz", rt.handleHealthz)
	return mux
}

type placeBetRequest struct {
	SlotIndex int    `json:"slot_index"`
	FighterID string `json:"fighter_id"`
	Lamports  uint64 `json:"amount_lamports"`
	Grant     string `json:"grant,omitempty"`
	// Wallet and Evidence are honored only when grant verification is
	// disabled; with grants required they come from the verified token.
	Wallet   string `json:"wallet,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

type placeBetResponse struct {
	Accepted bool   `json:"accepted"`
	BetID    int64  `json:"bet_id,omitempty"`
	Net      uint64 `json:"net,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (rt *Runtime) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRejection(w, apperrors.New(apperrors.CodeUnknown, "malformed request body"), http.StatusBadRequest)
		return
	}

	var wallet domain.Identity
	evidence := req.Evidence
	if rt.grants != nil {
		claims, err := auth.ValidateWagerGrant(req.Grant, *rt.grants)
		if err != nil {
			writeError(w, err)
			return
		}
		wallet = claims.Wallet
		evidence = claims.Evidence
	} else {
		var err error
		if wallet, err = domain.ParseIdentity(req.Wallet); err != nil {
			writeError(w, apperrors.New(apperrors.CodeBetWalletInvalid, "wallet must be 32 hex-encoded bytes"))
			return
		}
	}

	fighter, err := domain.ParseIdentity(req.FighterID)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeBetFighterNotInRumble, "fighter id must be 32 hex-encoded bytes"))
		return
	}

	bet, err := rt.orch.PlaceBet(r.Context(), scheduler.BetRequest{
		SlotIndex: req.SlotIndex,
		FighterID: fighter,
		Wallet:    wallet,
		Gross:     req.Lamports,
		Evidence:  evidence,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, placeBetResponse{Accepted: true, BetID: bet.ID, Net: bet.Net})
}

type enqueueRequest struct {
	FighterID string `json:"fighter_id"`
}

func (rt *Runtime) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRejection(w, apperrors.New(apperrors.CodeUnknown, "malformed request body"), http.StatusBadRequest)
		return
	}
	fighter, err := domain.ParseIdentity(req.FighterID)
	if err != nil {
		writeRejection(w, apperrors.New(apperrors.CodeUnknown, "fighter id must be 32 hex-encoded bytes"), http.StatusBadRequest)
		return
	}
	if err := rt.queue.Enqueue(fighter); err != nil {
		writeRejection(w, apperrors.New(apperrors.CodeUnknown, err.Error()), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": rt.queue.Len()})
}

func (rt *Runtime) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"slots": rt.orch.Status()})
}

func (rt *Runtime) handleBettingInfo(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeBetSlotInvalid, "slot index must be an integer"))
		return
	}
	info, err := rt.orch.Odds(index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (rt *Runtime) handleCombatState(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeBetSlotInvalid, "slot index must be an integer"))
		return
	}
	state, err := rt.orch.CombatState(index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Runtime) handlePayoutResult(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeRumbleNotFound, "rumble id must be an unsigned integer"))
		return
	}
	settlement, err := rt.orch.PayoutResult(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

type prepareClaimRequest struct {
	Wallet   string  `json:"wallet"`
	RumbleID *uint64 `json:"rumble_id,omitempty"`
}

func (rt *Runtime) handlePrepareClaim(w http.ResponseWriter, r *http.Request) {
	var req prepareClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRejection(w, apperrors.New(apperrors.CodeUnknown, "malformed request body"), http.StatusBadRequest)
		return
	}
	wallet, err := domain.ParseIdentity(req.Wallet)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeBetWalletInvalid, "wallet must be 32 hex-encoded bytes"))
		return
	}

	instruction, summary, err := rt.claims.Prepare(r.Context(), wallet, req.RumbleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instruction": instruction,
		"summary":     summary,
	})
}

func (rt *Runtime) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	last, ok := rt.Healthy()
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	payload := map[string]any{"healthy": ok}
	if !last.IsZero() {
		payload["last_tick"] = last.Format(time.RFC3339Nano)
	}
	writeJSON(w, status, payload)
}

// writeError maps a domain error to its HTTP status and a stable lowercase
// reason string.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	writeRejection(w, err, code.HTTPStatus())
}

func writeRejection(w http.ResponseWriter, err error, status int) {
	code := apperrors.GetCode(err)
	writeJSON(w, status, placeBetResponse{
		Accepted: false,
		Reason:   strings.ToLower(string(code)),
		Message:  err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[ARENA] encode response: %v", err)
	}
}
