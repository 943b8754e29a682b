package domain

import "errors"

var (
	// ErrResourceHeld means the lock for the requested resource span is held
	// by another booking attempt. Retryable.
	ErrResourceHeld = errors.New("resource is held by another booking")

	// ErrInsufficientStock means the resource has no remaining availability
	// for the requested span.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStaleState means a compare-and-set transition lost to a concurrent
	// actor that already resolved the reservation.
	ErrStaleState = errors.New("reservation state changed concurrently")

	// ErrInvalidTransition means the requested status change is not permitted
	// from the reservation's current state.
	ErrInvalidTransition = errors.New("invalid reservation state transition")

	// ErrReservationNotFound means no reservation exists for the given key.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrInventoryNotFound means no inventory row exists for the resource.
	ErrInventoryNotFound = errors.New("inventory not found")

	// ErrDuplicateRequest means an idempotency token was already consumed.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrValidation means the request itself is malformed; rejected before
	// any side effect.
	ErrValidation = errors.New("validation failed")
)
