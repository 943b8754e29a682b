package port

import (
	"context"

	"github.com/ksh277/Travleap-sub004/internal/core/domain"
)

// EventPublisher fans an inventory/booking-state change out to live
// observers, locally and across sibling processes. Best-effort: a publish
// failure must never fail the state change that produced it.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.InventoryUpdateEvent) error
}
