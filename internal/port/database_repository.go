package port

import (
	"context"
	"time"

	"github.com/ksh277/Travleap-sub004/internal/core/domain"
)

// ReservationRepository is the persistent record store for reservations and
// their inventory counters. Status transitions are compare-and-set guarded:
// an update only succeeds if the row's current status matches the expected
// prior status, so concurrent transition attempts resolve to exactly one
// winner and the losers get domain.ErrStaleState.
type ReservationRepository interface {
	// CreateReservation inserts a hold reservation and decrements the
	// resource's inventory counter in one transaction. Returns
	// domain.ErrInsufficientStock when no units remain.
	CreateReservation(ctx context.Context, res *domain.Reservation) error

	// GetReservation fetches a reservation by booking number.
	GetReservation(ctx context.Context, bookingNumber string) (*domain.Reservation, error)

	// ConfirmReservation transitions hold -> confirmed and marks payment paid.
	ConfirmReservation(ctx context.Context, bookingNumber string) error

	// CancelReservation transitions hold -> cancelled, restores the inventory
	// counter and appends an audit record in one transaction.
	CancelReservation(ctx context.Context, bookingNumber, reason string, now time.Time) error

	// ExpireReservation transitions hold -> expired, restores the inventory
	// counter and appends an audit record in one transaction.
	ExpireReservation(ctx context.Context, bookingNumber, reason string, now time.Time) error

	// FindExpiredHolds returns up to limit hold reservations with pending
	// payment whose deadline passed, soonest-expired first.
	FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)

	// GetInventory returns the inventory counter for a resource, or
	// domain.ErrInventoryNotFound.
	GetInventory(ctx context.Context, category, itemID string) (*domain.Inventory, error)
}
