package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LockBackend selects the lock store implementation at composition time.
type LockBackend string

const (
	LockBackendRedis  LockBackend = "redis"
	LockBackendMemory LockBackend = "memory"
)

type Config struct {
	Development bool

	// API configuration
	APIPort         int
	ShutdownTimeout time.Duration
	JWTSecret       string

	// MySQL configuration
	MySQLDSN          string
	MySQLMaxOpenConns int
	MySQLMaxIdleConns int

	// Redis configuration
	RedisAddr     string
	RedisPassword string
	RedisPoolSize int

	// Lock configuration
	LockBackend    LockBackend
	LockTTL        time.Duration
	LockMaxRetries int
	LockRetryDelay time.Duration

	// Booking configuration
	HoldTTL time.Duration

	// Idempotency configuration
	IdempotencyTTL time.Duration

	// Sweep worker configuration
	SweepInterval       time.Duration
	SweepBatchSize      int
	SweepItemDelay      time.Duration
	SweepDryRun         bool
	SweepAlertThreshold float64
	SweepAlertMinBatch  int

	// Realtime configuration
	RealtimeChannel string
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development: getEnvAsBool("DEVELOPMENT", false),

		APIPort:         getEnvAsInt("API_PORT", 8080),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		JWTSecret:       getEnv("JWT_SECRET", ""),

		MySQLDSN:          getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/travleap?parseTime=true"),
		MySQLMaxOpenConns: getEnvAsInt("MYSQL_MAX_OPEN_CONNS", 50),
		MySQLMaxIdleConns: getEnvAsInt("MYSQL_MAX_IDLE_CONNS", 25),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisPoolSize: getEnvAsInt("REDIS_POOL_SIZE", 100),

		LockBackend:    LockBackend(getEnv("LOCK_BACKEND", string(LockBackendRedis))),
		LockTTL:        getEnvAsDuration("LOCK_TTL", 30*time.Second),
		LockMaxRetries: getEnvAsInt("LOCK_MAX_RETRIES", 3),
		LockRetryDelay: getEnvAsDuration("LOCK_RETRY_DELAY", 100*time.Millisecond),

		HoldTTL: getEnvAsDuration("HOLD_TTL", 10*time.Minute),

		IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		SweepInterval:       getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		SweepBatchSize:      getEnvAsInt("SWEEP_BATCH_SIZE", 100),
		SweepItemDelay:      getEnvAsDuration("SWEEP_ITEM_DELAY", 50*time.Millisecond),
		SweepDryRun:         getEnvAsBool("SWEEP_DRY_RUN", false),
		SweepAlertThreshold: getEnvAsFloat("SWEEP_ALERT_THRESHOLD", 0.05),
		SweepAlertMinBatch:  getEnvAsInt("SWEEP_ALERT_MIN_BATCH", 10),

		RealtimeChannel: getEnv("REALTIME_CHANNEL", "travleap:events"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set.
func (c *Config) Validate() error {
	if c.MySQLDSN == "" {
		return fmt.Errorf("MYSQL_DSN is required")
	}
	if c.LockBackend != LockBackendRedis && c.LockBackend != LockBackendMemory {
		return fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", LockBackendRedis, LockBackendMemory, c.LockBackend)
	}
	if c.LockBackend == LockBackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when LOCK_BACKEND=redis")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.HoldTTL <= 0 {
		return fmt.Errorf("HOLD_TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be positive")
	}
	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
