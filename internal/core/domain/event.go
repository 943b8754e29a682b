package domain

import (
	"fmt"
	"time"
)

type EventAction string

const (
	EventActionHold    EventAction = "hold"
	EventActionConfirm EventAction = "confirm"
	EventActionCancel  EventAction = "cancel"
	EventActionExpired EventAction = "expired"
)

// InventoryUpdateEvent is the ephemeral pub/sub message fanned out to live
// observers on inventory or booking state changes. Delivery is best-effort.
type InventoryUpdateEvent struct {
	Channel        string      `json:"channel"`
	Category       string      `json:"category"`
	ItemID         string      `json:"item_id"`
	Action         EventAction `json:"action"`
	BookingNumber  string      `json:"booking_number,omitempty"`
	AvailableCount *int        `json:"available_count,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// InventoryChannel names the public channel for a resource's availability.
func InventoryChannel(category, itemID string) string {
	return fmt.Sprintf("inventory:%s:%s", category, itemID)
}

// BookingChannel names the owner-restricted channel for a single booking.
func BookingChannel(bookingNumber string) string {
	return fmt.Sprintf("booking:%s", bookingNumber)
}

// VendorChannel names the vendor-restricted channel for a resource owner.
func VendorChannel(vendorID string) string {
	return fmt.Sprintf("vendor:%s", vendorID)
}
