package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrClosed          = errors.New("auction closed")
	ErrBidTooLow       = errors.New("bid too low")
	ErrContention      = errors.New("contention, try again")
	ErrDuplicateKey    = errors.New("duplicate key")

	// ErrStaleState is returned by LotStore.CommitBid when the expected price no longer matches.
	// It is handled inside the engine and never returned to callers.
	ErrStaleState = errors.New("stale state")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUserExists   = errors.New("user already exists")
)

// Reason maps a bid error to the rejection reason shown to bidders.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "no such auction"
	case errors.Is(err, ErrClosed):
		return "auction closed"
	case errors.Is(err, ErrBidTooLow):
		return "bid too low"
	case errors.Is(err, ErrContention):
		return "contention, try again"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid argument"
	default:
		return "internal error"
	}
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrClosed):
		return "Closed"
	case errors.Is(err, ErrBidTooLow):
		return "BidTooLow"
	case errors.Is(err, ErrContention):
		return "Contention"
	case errors.Is(err, ErrDuplicateKey):
		return "DuplicateKey"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrUserExists):
		return "UserExists"
	default:
		return "InternalServerError"
	}
}
