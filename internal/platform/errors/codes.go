package errors

import (
	stderrors "errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Betting errors
	CodeBettingClosed         Code = "BETTING_CLOSED"
	CodeBetAmountOutOfRange   Code = "BET_AMOUNT_OUT_OF_RANGE"
	CodeBetFighterNotInRumble Code = "BET_FIGHTER_NOT_IN_RUMBLE"
	CodeBetEvidenceReused     Code = "BET_EVIDENCE_REUSED"
	CodeBetEvidenceMissing    Code = "BET_EVIDENCE_MISSING"
	CodeBetSlotInvalid        Code = "BET_SLOT_INVALID"
	CodeBetWalletInvalid      Code = "BET_WALLET_INVALID"

	// Grant errors
	CodeGrantInvalid Code = "GRANT_INVALID"
	CodeGrantExpired Code = "GRANT_EXPIRED"

	// Rumble errors
	CodeRumbleInvalidFighterCount    Code = "RUMBLE_INVALID_FIGHTER_COUNT"
	CodeRumbleInvalidStateTransition Code = "RUMBLE_INVALID_STATE_TRANSITION"
	CodeRumbleNotFound               Code = "RUMBLE_NOT_FOUND"

	// Payout errors
	CodePayoutAlreadySettled   Code = "PAYOUT_ALREADY_SETTLED"
	CodePayoutNotReady         Code = "PAYOUT_NOT_READY"
	CodeClaimNoneReady         Code = "NO_READY_CLAIMS"
	CodeClaimModeDisabled      Code = "CLAIM_MODE_DISABLED"
	CodeClaimVaultsUnderfunded Code = "VAULTS_UNDERFUNDED"
	CodeClaimAllFiltered       Code = "SIMULATION_FILTERED_ALL"

	// Lease errors
	CodeLeaseNotOwned Code = "LEASE_NOT_OWNED"
	CodeLeaseHeld     Code = "LEASE_HELD"

	// Ledger errors
	CodeLedgerUnavailable Code = "LEDGER_UNAVAILABLE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBettingClosed, CodeBetAmountOutOfRange, CodeBetFighterNotInRumble,
		CodeBetEvidenceReused, CodeBetEvidenceMissing, CodeBetSlotInvalid, CodeBetWalletInvalid,
		CodeRumbleInvalidFighterCount, CodeClaimNoneReady, CodeClaimModeDisabled,
		CodeClaimVaultsUnderfunded, CodeClaimAllFiltered:
		return http.StatusBadRequest
	case CodeGrantInvalid, CodeGrantExpired:
		return http.StatusUnauthorized
	case CodeNotFound, CodeRumbleNotFound:
		return http.StatusNotFound
	case CodePayoutAlreadySettled, CodeLeaseHeld:
		return http.StatusConflict
	case CodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
