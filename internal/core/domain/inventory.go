package domain

import "time"

// Inventory tracks the remaining reservable units of a resource.
type Inventory struct {
	Category  string
	ItemID    string
	Available int
	Version   int // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditRecord is an immutable trail entry appended when a reservation is
// resolved outside the normal payment flow (sweep expiry, cancellation).
type AuditRecord struct {
	ID            int64
	BookingNumber string
	Action        EventAction
	Reason        string
	HoldExpiresAt *time.Time
	OccurredAt    time.Time
}
