// Command stress races concurrent booking attempts for a single resource
// span against live Redis and MySQL, and reports how the lock resolved them.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/ksh277/Travleap-sub004/internal/adapter/storage"
	"github.com/ksh277/Travleap-sub004/internal/clock"
	"github.com/ksh277/Travleap-sub004/internal/config"
	"github.com/ksh277/Travleap-sub004/internal/core/domain"
	"github.com/ksh277/Travleap-sub004/internal/core/service"
	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

const (
	category      = "rentcar"
	resourceID    = "veh_stress"
	totalRequests = 50
	initialStock  = 20
)

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, event domain.InventoryUpdateEvent) error {
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg := logger.NewNop()
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()

	// Reset fixture state
	if _, err := db.ExecContext(ctx, `
		INSERT INTO inventory (category, item_id, available, version, created_at, updated_at)
		VALUES (?, ?, ?, 0, NOW(), NOW())
		ON DUPLICATE KEY UPDATE available = ?, version = 0`,
		category, resourceID, initialStock, initialStock,
	); err != nil {
		log.Fatalf("failed to seed inventory: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE resource_id = ?`, resourceID); err != nil {
		log.Fatalf("failed to clear reservations: %v", err)
	}

	locks := storage.NewRedisLockProvider(rdb, logg, cfg.LockMaxRetries, cfg.LockRetryDelay)
	repo := storage.NewMySQLAdapter(db)
	svc := service.NewBookingService(locks, repo, nopPublisher{}, clock.NewSystem(), logg, cfg.LockTTL, cfg.HoldTTL)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	var created, contended, failed atomic.Int32
	var wg sync.WaitGroup

	begin := time.Now()
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.CreateBooking(ctx, service.CreateBookingInput{
				UserID:     fmt.Sprintf("user-%d", n),
				Category:   category,
				ResourceID: resourceID,
				StartDate:  start,
				EndDate:    end,
				Quantity:   1,
				Currency:   "KRW",
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, domain.ErrResourceHeld):
				contended.Add(1)
			default:
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	fmt.Printf("requests:  %d\n", totalRequests)
	fmt.Printf("created:   %d\n", created.Load())
	fmt.Printf("contended: %d\n", contended.Load())
	fmt.Printf("failed:    %d\n", failed.Load())
	fmt.Printf("elapsed:   %s\n", time.Since(begin))

	inv, err := repo.GetInventory(ctx, category, resourceID)
	if err != nil {
		log.Fatalf("failed to read inventory: %v", err)
	}
	fmt.Printf("available: %d (started at %d)\n", inv.Available, initialStock)
}
