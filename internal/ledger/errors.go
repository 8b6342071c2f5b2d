package ledger

import (
	"errors"

	"github.com/mmynk/sambatan/internal/storage"
)

var (
	// ErrNotFound is returned when the group purchase or participant does not exist.
	ErrNotFound = storage.ErrNotFound

	// ErrInvalidArgument is returned for malformed input such as a missing ID.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidQuantity is returned when a join or target quantity is below 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrCapacityExceeded is returned when a join would push committed quantity
	// past the target. Nothing is admitted.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrNotOpen is returned when the group purchase is no longer accepting changes.
	ErrNotOpen = errors.New("group purchase is not open")

	// ErrAlreadyExpired is returned when the group purchase passed its
	// expiration time or was closed by the sweeper.
	ErrAlreadyExpired = errors.New("group purchase has expired")

	// ErrAlreadyCancelled is returned when the group purchase was cancelled.
	ErrAlreadyCancelled = errors.New("group purchase was cancelled")

	// ErrAlreadyJoined is returned when the user already has an active participation.
	ErrAlreadyJoined = errors.New("user already joined this group purchase")

	// ErrNotParticipant is returned when the user has no active participation.
	ErrNotParticipant = errors.New("user is not a participant")

	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("actor is not allowed to perform this operation")

	// ErrContention is returned when per-record exclusivity could not be
	// obtained in time. The operation did not apply and is safe to retry.
	ErrContention = errors.New("group purchase is busy, retry later")
)

// Retryable reports whether err is transient and the operation may be retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrContention)
}

// Name returns a stable identifier for a ledger error, used in metrics labels
// and transport metadata. Unknown errors map to "internal".
func Name(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrAlreadyExpired):
		return "already_expired"
	case errors.Is(err, ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, ErrNotOpen):
		return "not_open"
	case errors.Is(err, ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrContention):
		return "contention"
	}
	return "internal"
}
