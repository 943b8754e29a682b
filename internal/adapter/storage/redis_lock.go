package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

// releaseLockScript deletes the lock only when the caller still owns it.
// A plain GET-then-DEL would let a delayed release clobber a lock that
// expired and was re-acquired by another caller in between.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLockProvider implements token-owned TTL locks on Redis via
// SET NX PX. One live token per key; releases are token-checked.
type RedisLockProvider struct {
	client     *redis.Client
	logger     *logger.Logger
	maxRetries int
	retryDelay time.Duration
}

func NewRedisLockProvider(client *redis.Client, log *logger.Logger, maxRetries int, retryDelay time.Duration) *RedisLockProvider {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	return &RedisLockProvider{
		client:     client,
		logger:     log,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Acquire tries SET NX with a fresh token, backing off 100ms, 200ms, 400ms...
// between attempts. Store errors fail closed: the lock is reported as not
// acquired rather than silently granted.
func (p *RedisLockProvider) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	delay := p.retryDelay

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		ok, err := p.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			p.logger.Errorw("lock store unreachable, failing closed", "key", key, "error", err)
			return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return token, true, nil
		}
	}

	return "", false, nil
}

func (p *RedisLockProvider) Release(ctx context.Context, key, token string) error {
	deleted, err := releaseLockScript.Run(ctx, p.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	if deleted == 0 {
		// Expired or owned by someone else; either way not ours to delete.
		p.logger.Debugw("lock release skipped, token mismatch", "key", key)
	}
	return nil
}

func (p *RedisLockProvider) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := p.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check lock %s: %w", key, err)
	}
	return n > 0, nil
}

func (p *RedisLockProvider) TTLRemaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := p.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("lock ttl %s: %w", key, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (p *RedisLockProvider) ForceRelease(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("force release lock %s: %w", key, err)
	}
	return nil
}
