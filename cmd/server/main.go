package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/ksh277/Travleap-sub004/internal/adapter/handler"
	"github.com/ksh277/Travleap-sub004/internal/adapter/realtime"
	"github.com/ksh277/Travleap-sub004/internal/adapter/storage"
	"github.com/ksh277/Travleap-sub004/internal/auth"
	"github.com/ksh277/Travleap-sub004/internal/clock"
	"github.com/ksh277/Travleap-sub004/internal/config"
	"github.com/ksh277/Travleap-sub004/internal/core/service"
	"github.com/ksh277/Travleap-sub004/internal/port"
	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg, err := logger.NewLogger(cfg.Development)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logg.SugaredLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logg.Fatalf("failed to open mysql: %v", err)
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		logg.Fatalf("failed to ping mysql: %v", err)
	}
	logg.Info("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logg.Fatalf("failed to connect redis: %v", err)
	}
	logg.Info("connected to redis")

	// Adapters
	repo := storage.NewMySQLAdapter(db)
	idempStore := storage.NewRedisIdempotencyStore(rdb)

	var locks port.LockProvider
	switch cfg.LockBackend {
	case config.LockBackendMemory:
		locks = storage.NewMemoryLockProvider(logg, cfg.LockMaxRetries, cfg.LockRetryDelay)
	default:
		locks = storage.NewRedisLockProvider(rdb, logg, cfg.LockMaxRetries, cfg.LockRetryDelay)
	}
	logg.Infow("lock provider selected", "backend", cfg.LockBackend)

	// Realtime hub
	hub := realtime.NewHub(rdb, cfg.RealtimeChannel, repo, logg)
	go hub.Run(ctx)

	// Core services
	clk := clock.NewSystem()
	bookings := service.NewBookingService(locks, repo, hub, clk, logg, cfg.LockTTL, cfg.HoldTTL)

	sweeper := service.NewExpirySweeper(repo, locks, hub, clk, logg, service.SweeperConfig{
		Interval:       cfg.SweepInterval,
		BatchSize:      cfg.SweepBatchSize,
		ItemDelay:      cfg.SweepItemDelay,
		DryRun:         cfg.SweepDryRun,
		AlertThreshold: cfg.SweepAlertThreshold,
		AlertMinBatch:  cfg.SweepAlertMinBatch,
	})
	go sweeper.Start(ctx)

	// HTTP server
	verifier := auth.NewVerifier(cfg.JWTSecret)
	bookingHandler := handler.NewBookingHandler(bookings, idempStore, logg)
	router := handler.NewRouter(bookingHandler, idempStore, hub, verifier, logg, cfg.IdempotencyTTL, cfg.Development)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: router,
	}

	go func() {
		logg.Infof("HTTP server listening on :%d", cfg.APIPort)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logg.Errorw("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Warnw("HTTP server shutdown error", "error", err)
	}
	logg.Info("HTTP server stopped")

	// Stop the sweeper and the hub fan-out loop
	cancel()

	rdb.Close()
	db.Close()
	logg.Info("connections closed")
}
