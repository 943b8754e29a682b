package service

import (
	"context"
	"sync"
	"time"

	"github.com/ksh277/Travleap-sub004/internal/core/domain"
)

// mockRepo is an in-memory ReservationRepository with the same
// compare-and-set semantics as the MySQL adapter.
type mockRepo struct {
	mu           sync.Mutex
	reservations map[string]*domain.Reservation
	inventory    map[string]int
	audit        []domain.AuditRecord
	nextID       int64

	failExpire map[string]error // booking number -> forced failure
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		reservations: make(map[string]*domain.Reservation),
		inventory:    make(map[string]int),
		failExpire:   make(map[string]error),
	}
}

func invKey(category, itemID string) string {
	return category + "/" + itemID
}

func (m *mockRepo) setInventory(category, itemID string, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventory[invKey(category, itemID)] = available
}

func (m *mockRepo) availableOf(category, itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inventory[invKey(category, itemID)]
}

func (m *mockRepo) CreateReservation(ctx context.Context, res *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := invKey(res.Category, res.ResourceID)
	if m.inventory[key] < res.Quantity {
		return domain.ErrInsufficientStock
	}
	m.inventory[key] -= res.Quantity

	m.nextID++
	res.ID = m.nextID
	clone := *res
	m.reservations[res.BookingNumber] = &clone
	return nil
}

func (m *mockRepo) GetReservation(ctx context.Context, bookingNumber string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, exists := m.reservations[bookingNumber]
	if !exists {
		return nil, domain.ErrReservationNotFound
	}
	clone := *res
	return &clone, nil
}

func (m *mockRepo) ConfirmReservation(ctx context.Context, bookingNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, exists := m.reservations[bookingNumber]
	if !exists {
		return domain.ErrReservationNotFound
	}
	if res.Status != domain.ReservationStatusHold {
		return domain.ErrStaleState
	}
	res.Status = domain.ReservationStatusConfirmed
	res.PaymentStatus = domain.PaymentStatusPaid
	res.HoldExpiresAt = nil
	res.Version++
	return nil
}

func (m *mockRepo) CancelReservation(ctx context.Context, bookingNumber, reason string, now time.Time) error {
	return m.resolve(bookingNumber, reason, now, domain.ReservationStatusCancelled)
}

func (m *mockRepo) ExpireReservation(ctx context.Context, bookingNumber, reason string, now time.Time) error {
	m.mu.Lock()
	if err, forced := m.failExpire[bookingNumber]; forced {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	return m.resolve(bookingNumber, reason, now, domain.ReservationStatusExpired)
}

func (m *mockRepo) resolve(bookingNumber, reason string, now time.Time, next domain.ReservationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, exists := m.reservations[bookingNumber]
	if !exists {
		return domain.ErrReservationNotFound
	}
	if res.Status != domain.ReservationStatusHold {
		return domain.ErrStaleState
	}

	holdExpiresAt := res.HoldExpiresAt
	res.Status = next
	res.HoldExpiresAt = nil
	res.Version++
	switch next {
	case domain.ReservationStatusCancelled:
		t := now
		res.CancelledAt = &t
	case domain.ReservationStatusExpired:
		res.PaymentStatus = domain.PaymentStatusExpired
	}

	m.inventory[invKey(res.Category, res.ResourceID)] += res.Quantity
	m.audit = append(m.audit, domain.AuditRecord{
		BookingNumber: bookingNumber,
		Reason:        reason,
		HoldExpiresAt: holdExpiresAt,
		OccurredAt:    now,
	})
	return nil
}

func (m *mockRepo) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Reservation
	for _, res := range m.reservations {
		if len(out) >= limit {
			break
		}
		if res.Status == domain.ReservationStatusHold &&
			res.PaymentStatus == domain.PaymentStatusPending &&
			res.HoldExpiresAt != nil && res.HoldExpiresAt.Before(now) {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (m *mockRepo) GetInventory(ctx context.Context, category, itemID string) (*domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	available, exists := m.inventory[invKey(category, itemID)]
	if !exists {
		return nil, domain.ErrInventoryNotFound
	}
	return &domain.Inventory{Category: category, ItemID: itemID, Available: available}, nil
}

// mockLockProvider records calls and can simulate contention or store
// failure.
type mockLockProvider struct {
	mu            sync.Mutex
	held          map[string]string
	contended     bool
	storeErr      error
	releases      int
	forceReleases []string
}

func newMockLockProvider() *mockLockProvider {
	return &mockLockProvider{held: make(map[string]string)}
}

func (m *mockLockProvider) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.storeErr != nil {
		return "", false, m.storeErr
	}
	if m.contended {
		return "", false, nil
	}
	if _, exists := m.held[key]; exists {
		return "", false, nil
	}
	token := "token-" + key
	m.held[key] = token
	return token, true, nil
}

func (m *mockLockProvider) Release(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	m.releases++
	return nil
}

func (m *mockLockProvider) IsLocked(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.held[key]
	return exists, nil
}

func (m *mockLockProvider) TTLRemaining(ctx context.Context, key string) (time.Duration, error) {
	return 0, nil
}

func (m *mockLockProvider) ForceRelease(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
	m.forceReleases = append(m.forceReleases, key)
	return nil
}

// mockPublisher records published events.
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.InventoryUpdateEvent
}

func (m *mockPublisher) Publish(ctx context.Context, event domain.InventoryUpdateEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) published() []domain.InventoryUpdateEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.InventoryUpdateEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *mockPublisher) actionsFor(channel string) []domain.EventAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventAction
	for _, ev := range m.events {
		if ev.Channel == channel {
			out = append(out, ev.Action)
		}
	}
	return out
}
