package trade

import (
	"errors"
	"net/http"
)

// Typed failures returned from the executor boundary. The HTTP layer maps
// each to a stable code and status with Code and HTTPStatus — no string
// matching required.
var (
	// ErrInvalidInput covers malformed, missing, or non-positive fields.
	ErrInvalidInput = errors.New("trade: invalid input")

	// ErrInsufficientFunds is returned when a buy costs more than the
	// account's cash balance.
	ErrInsufficientFunds = errors.New("trade: insufficient funds")

	// ErrNoPosition is returned when selling a symbol with no open holding.
	ErrNoPosition = errors.New("trade: no open position")

	// ErrInsufficientShares is returned when a sell quantity exceeds the
	// held quantity.
	ErrInsufficientShares = errors.New("trade: not enough shares to sell")

	// ErrNotFound is returned when the target account or ledger entry does
	// not exist or is not owned by the caller.
	ErrNotFound = errors.New("trade: not found")

	// ErrConflictRetryExhausted is returned when concurrent-update
	// contention was not resolved within the retry budget. Transient:
	// the caller may retry the request.
	ErrConflictRetryExhausted = errors.New("trade: conflicting concurrent update, retries exhausted")

	// ErrStoreUnavailable wraps persistence-layer failures. Transient.
	ErrStoreUnavailable = errors.New("trade: store unavailable")
)

// Code returns the stable machine-readable code for a failure.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNoPosition):
		return "no_position"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflictRetryExhausted):
		return "conflict_retry_exhausted"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// HTTPStatus returns the HTTP status for a failure code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrNoPosition),
		errors.Is(err, ErrInsufficientShares):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflictRetryExhausted):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
