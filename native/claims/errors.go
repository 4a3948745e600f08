package claims

import "errors"

var (
	// ErrInvalidIdentity is returned when an address fails normalization.
	ErrInvalidIdentity = errors.New("claims: invalid identity")
	// ErrNotEligible is returned when the identity has no allocation.
	ErrNotEligible = errors.New("claims: identity not eligible")
	// ErrAlreadyClaimed is returned when the allocation is reserved or consumed.
	ErrAlreadyClaimed = errors.New("claims: already claimed")
	// ErrNotReserved is returned when confirm or release targets an entry that is not reserved.
	ErrNotReserved = errors.New("claims: claim not reserved")
	// ErrIssuanceFailed is returned when the transfer artifact could not be produced.
	ErrIssuanceFailed = errors.New("claims: issuance failed")
	// ErrPersistence is returned when a state change could not be written durably.
	ErrPersistence = errors.New("claims: persistence failed")
	// ErrPaused is returned when new issuance has been paused by an operator.
	ErrPaused = errors.New("claims: issuance paused")
)

// Outcome maps an operation error onto a stable label used in metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrNotReserved):
		return "not_reserved"
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrIssuanceFailed):
		return "issuance_failed"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "error"
	}
}
