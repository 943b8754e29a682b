package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusHold      ReservationStatus = "hold"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusExpired  PaymentStatus = "expired"
)

// Reservation is the unit under concurrency control. It is created in hold
// state with a payment deadline and moves to exactly one terminal state.
type Reservation struct {
	ID            int64
	BookingNumber string
	UserID        string
	VendorID      string

	Category   string
	ResourceID string
	UnitID     string // optional sub-resource (room type, vehicle unit)

	StartDate time.Time
	EndDate   time.Time
	Quantity  int

	TotalAmount int64 // minor currency units
	Currency    string

	Status        ReservationStatus
	PaymentStatus PaymentStatus

	// HoldExpiresAt is non-nil iff Status == hold.
	HoldExpiresAt *time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time

	Version int // optimistic locking
}

// IsTerminal reports whether no further transition is permitted.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationStatusConfirmed, ReservationStatusExpired, ReservationStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a reservation may move from s to next.
// The only legal transitions are hold -> confirmed | expired | cancelled.
func (s ReservationStatus) CanTransition(next ReservationStatus) bool {
	if s != ReservationStatusHold {
		return false
	}
	return next.IsTerminal()
}

// Transition validates the requested status change against the current state.
// The persisted compare-and-set in the repository is the authoritative guard;
// this check rejects obviously invalid requests before any I/O.
func (r *Reservation) Transition(next ReservationStatus) error {
	if !r.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	r.Status = next
	r.HoldExpiresAt = nil
	return nil
}

// LockKey returns the lock key protecting this reservation's resource span.
func (r *Reservation) LockKey() LockKey {
	return NewLockKey(r.Category, r.ResourceID, r.StartDate, r.EndDate)
}
