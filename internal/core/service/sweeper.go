package service

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ksh277/Travleap-sub004/internal/clock"
	"github.com/ksh277/Travleap-sub004/internal/core/domain"
	"github.com/ksh277/Travleap-sub004/internal/port"
	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

var (
	sweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "travleap_sweep_cycles_total",
		Help: "Completed expiry sweep cycles.",
	})
	sweepReservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travleap_sweep_reservations_total",
		Help: "Reservations processed by the expiry sweep, by result.",
	}, []string{"result"})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "travleap_sweep_cycle_duration_seconds",
		Help:    "Duration of expiry sweep cycles.",
		Buckets: prometheus.DefBuckets,
	})
)

// SweeperConfig bounds a sweep cycle's work and load.
type SweeperConfig struct {
	Interval       time.Duration
	BatchSize      int
	ItemDelay      time.Duration
	DryRun         bool
	AlertThreshold float64 // failure rate triggering an operator alert
	AlertMinBatch  int     // minimum batch size for the alert to be meaningful
}

// CycleStats summarizes one sweep cycle.
type CycleStats struct {
	Attempted int
	Expired   int
	Skipped   int // lost the compare-and-set race; already resolved elsewhere
	Failed    int
	Duration  time.Duration
}

// ExpirySweeper periodically reclaims inventory held by reservations whose
// payment window lapsed. Expiration is data-driven: any instance can act on
// an overdue hold by querying the stored deadline, so no state is lost when
// a process restarts.
type ExpirySweeper struct {
	repo      port.ReservationRepository
	locks     port.LockProvider
	publisher port.EventPublisher
	clock     clock.Clock
	logger    *logger.Logger
	cfg       SweeperConfig
}

func NewExpirySweeper(
	repo port.ReservationRepository,
	locks port.LockProvider,
	publisher port.EventPublisher,
	clk clock.Clock,
	log *logger.Logger,
	cfg SweeperConfig,
) *ExpirySweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = 0.05
	}
	if cfg.AlertMinBatch <= 0 {
		cfg.AlertMinBatch = 10
	}
	return &ExpirySweeper{
		repo:      repo,
		locks:     locks,
		publisher: publisher,
		clock:     clk,
		logger:    log,
		cfg:       cfg,
	}
}

// Start runs sweep cycles on the configured interval until ctx is cancelled.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.logger.Infow("expiry sweeper started",
		"interval", w.cfg.Interval,
		"batch_size", w.cfg.BatchSize,
		"dry_run", w.cfg.DryRun,
	)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single sweep cycle. Exported so tests and operational
// tooling can drive the worker without waiting on wall-clock time.
func (w *ExpirySweeper) RunOnce(ctx context.Context) CycleStats {
	start := time.Now()
	now := w.clock.Now()
	var stats CycleStats

	candidates, err := w.repo.FindExpiredHolds(ctx, now, w.cfg.BatchSize)
	if err != nil {
		w.logger.Errorw("sweep: candidate discovery failed", "error", err)
		stats.Duration = time.Since(start)
		return stats
	}

	for i, res := range candidates {
		if ctx.Err() != nil {
			break
		}
		stats.Attempted++

		if w.cfg.DryRun {
			w.logger.Infow("sweep dry-run: would expire hold",
				"booking_number", res.BookingNumber,
				"hold_expires_at", res.HoldExpiresAt,
			)
			continue
		}

		switch err := w.expireOne(ctx, res, now); {
		case err == nil:
			stats.Expired++
		case errors.Is(err, domain.ErrStaleState):
			// Someone else already resolved it; not an error.
			stats.Skipped++
			sweepReservations.WithLabelValues("skipped").Inc()
		default:
			stats.Failed++
			sweepReservations.WithLabelValues("failed").Inc()
			w.logger.Errorw("sweep: failed to expire hold",
				"booking_number", res.BookingNumber, "error", err)
		}

		// Bound storage load during large backlogs.
		if w.cfg.ItemDelay > 0 && i < len(candidates)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.ItemDelay):
			}
		}
	}

	stats.Duration = time.Since(start)
	sweepCycles.Inc()
	sweepDuration.Observe(stats.Duration.Seconds())

	if stats.Attempted > 0 {
		w.logger.Infow("sweep cycle complete",
			"attempted", stats.Attempted,
			"expired", stats.Expired,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
			"duration", stats.Duration,
			"dry_run", w.cfg.DryRun,
		)
	}

	if stats.Attempted >= w.cfg.AlertMinBatch {
		failureRate := float64(stats.Failed) / float64(stats.Attempted)
		if failureRate > w.cfg.AlertThreshold {
			w.logger.Errorw("ALERT: sweep failure rate above threshold",
				"failure_rate", failureRate,
				"threshold", w.cfg.AlertThreshold,
				"attempted", stats.Attempted,
				"failed", stats.Failed,
			)
		}
	}

	return stats
}

func (w *ExpirySweeper) expireOne(ctx context.Context, res domain.Reservation, now time.Time) error {
	deadline := "unknown"
	if res.HoldExpiresAt != nil {
		deadline = res.HoldExpiresAt.Format(time.RFC3339)
	}

	if err := w.repo.ExpireReservation(ctx, res.BookingNumber, "hold deadline "+deadline+" passed without payment", now); err != nil {
		return err
	}
	sweepReservations.WithLabelValues("expired").Inc()

	// The creation flow normally released this lock long ago; clear it in
	// case a crashed process left it behind.
	key := res.LockKey().String()
	if err := w.locks.ForceRelease(ctx, key); err != nil {
		w.logger.Warnw("sweep: failed to clear orphaned lock", "key", key, "error", err)
	}

	w.publishExpired(ctx, res, now)
	return nil
}

func (w *ExpirySweeper) publishExpired(ctx context.Context, res domain.Reservation, now time.Time) {
	var available *int
	if inv, err := w.repo.GetInventory(ctx, res.Category, res.ResourceID); err == nil {
		available = &inv.Available
	}

	events := []domain.InventoryUpdateEvent{
		{
			Channel:        domain.InventoryChannel(res.Category, res.ResourceID),
			Category:       res.Category,
			ItemID:         res.ResourceID,
			Action:         domain.EventActionExpired,
			AvailableCount: available,
			Timestamp:      now,
		},
		{
			Channel:       domain.BookingChannel(res.BookingNumber),
			Category:      res.Category,
			ItemID:        res.ResourceID,
			Action:        domain.EventActionExpired,
			BookingNumber: res.BookingNumber,
			Timestamp:     now,
		},
	}
	for _, ev := range events {
		if err := w.publisher.Publish(ctx, ev); err != nil {
			w.logger.Warnw("sweep: failed to publish expiry event",
				"channel", ev.Channel, "error", err)
		}
	}
}
