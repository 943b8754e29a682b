package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ksh277/Travleap-sub004/internal/clock"
	"github.com/ksh277/Travleap-sub004/internal/core/domain"
	"github.com/ksh277/Travleap-sub004/internal/port"
	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

// BookingService runs the booking lifecycle: lock-guarded hold creation,
// payment confirmation and cancellation. The resource lock serializes
// concurrent creation attempts on the same span; the repository's
// compare-and-set guard serializes transitions on a single reservation.
// They are independent layers protecting different invariants.
type BookingService struct {
	locks     port.LockProvider
	repo      port.ReservationRepository
	publisher port.EventPublisher
	clock     clock.Clock
	logger    *logger.Logger
	lockTTL   time.Duration
	holdTTL   time.Duration
}

func NewBookingService(
	locks port.LockProvider,
	repo port.ReservationRepository,
	publisher port.EventPublisher,
	clk clock.Clock,
	log *logger.Logger,
	lockTTL, holdTTL time.Duration,
) *BookingService {
	return &BookingService{
		locks:     locks,
		repo:      repo,
		publisher: publisher,
		clock:     clk,
		logger:    log,
		lockTTL:   lockTTL,
		holdTTL:   holdTTL,
	}
}

type CreateBookingInput struct {
	UserID      string
	VendorID    string
	Category    string
	ResourceID  string
	UnitID      string
	StartDate   time.Time
	EndDate     time.Time
	Quantity    int
	TotalAmount int64
	Currency    string
}

func (in CreateBookingInput) validate() error {
	if in.Category == "" || in.ResourceID == "" {
		return fmt.Errorf("%w: category and resource id are required", domain.ErrValidation)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	if in.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", domain.ErrValidation)
	}
	if !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		return fmt.Errorf("%w: end date before start date", domain.ErrValidation)
	}
	return nil
}

// CreateBooking acquires the resource-span lock, creates a hold reservation
// with a payment deadline and announces it. Contention surfaces as
// domain.ErrResourceHeld, a retryable conflict.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*domain.Reservation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	key := domain.NewLockKey(in.Category, in.ResourceID, in.StartDate, in.EndDate)
	token, ok, err := s.locks.Acquire(ctx, key.String(), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire booking lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrResourceHeld
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), key.String(), token); err != nil {
			s.logger.Warnw("failed to release booking lock", "key", key, "error", err)
		}
	}()

	now := s.clock.Now()
	holdExpiresAt := now.Add(s.holdTTL)
	res := &domain.Reservation{
		BookingNumber: s.newBookingNumber(now),
		UserID:        in.UserID,
		VendorID:      in.VendorID,
		Category:      in.Category,
		ResourceID:    in.ResourceID,
		UnitID:        in.UnitID,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Quantity:      in.Quantity,
		TotalAmount:   in.TotalAmount,
		Currency:      in.Currency,
		Status:        domain.ReservationStatusHold,
		PaymentStatus: domain.PaymentStatusPending,
		HoldExpiresAt: &holdExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.CreateReservation(ctx, res); err != nil {
		return nil, err
	}

	s.publishChange(ctx, res, domain.EventActionHold)
	s.logger.Infow("booking hold created",
		"booking_number", res.BookingNumber,
		"lock_key", key,
		"hold_expires_at", holdExpiresAt,
	)
	return res, nil
}

// ConfirmPayment transitions a hold to confirmed once the payment gateway
// reports success. A stale-state error means the sweep worker or a
// cancellation already resolved the reservation.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingNumber string) (*domain.Reservation, error) {
	if err := s.repo.ConfirmReservation(ctx, bookingNumber); err != nil {
		return nil, err
	}

	res, err := s.repo.GetReservation(ctx, bookingNumber)
	if err != nil {
		return nil, err
	}

	s.publishChange(ctx, res, domain.EventActionConfirm)
	s.logger.Infow("booking confirmed", "booking_number", bookingNumber)
	return res, nil
}

// CancelBooking transitions a hold to cancelled, restores inventory and
// clears any lingering resource lock.
func (s *BookingService) CancelBooking(ctx context.Context, bookingNumber, reason string) (*domain.Reservation, error) {
	if err := s.repo.CancelReservation(ctx, bookingNumber, reason, s.clock.Now()); err != nil {
		return nil, err
	}

	res, err := s.repo.GetReservation(ctx, bookingNumber)
	if err != nil {
		return nil, err
	}

	// The creation path releases its lock on return; this is a safety net
	// for crash/retry leftovers.
	if err := s.locks.ForceRelease(ctx, res.LockKey().String()); err != nil {
		s.logger.Warnw("failed to clear lock on cancel", "booking_number", bookingNumber, "error", err)
	}

	s.publishChange(ctx, res, domain.EventActionCancel)
	s.logger.Infow("booking cancelled", "booking_number", bookingNumber, "reason", reason)
	return res, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingNumber string) (*domain.Reservation, error) {
	return s.repo.GetReservation(ctx, bookingNumber)
}

func (s *BookingService) publishChange(ctx context.Context, res *domain.Reservation, action domain.EventAction) {
	now := s.clock.Now()

	var available *int
	if inv, err := s.repo.GetInventory(ctx, res.Category, res.ResourceID); err == nil {
		available = &inv.Available
	}

	events := []domain.InventoryUpdateEvent{
		{
			Channel:        domain.InventoryChannel(res.Category, res.ResourceID),
			Category:       res.Category,
			ItemID:         res.ResourceID,
			Action:         action,
			AvailableCount: available,
			Timestamp:      now,
		},
		{
			Channel:       domain.BookingChannel(res.BookingNumber),
			Category:      res.Category,
			ItemID:        res.ResourceID,
			Action:        action,
			BookingNumber: res.BookingNumber,
			Timestamp:     now,
		},
	}
	if res.VendorID != "" {
		events = append(events, domain.InventoryUpdateEvent{
			Channel:       domain.VendorChannel(res.VendorID),
			Category:      res.Category,
			ItemID:        res.ResourceID,
			Action:        action,
			BookingNumber: res.BookingNumber,
			Timestamp:     now,
		})
	}

	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warnw("failed to publish booking event",
				"channel", ev.Channel, "action", ev.Action, "error", err)
		}
	}
}

func (s *BookingService) newBookingNumber(now time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TL-%s-%s", now.Format("20060102"), short)
}
