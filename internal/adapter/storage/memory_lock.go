package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

type memoryLockEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryLockProvider simulates the Redis lock's TTL and check-and-delete
// semantics with an in-process map. Its guarantees hold within a single
// process only: multiple instances each running their own MemoryLockProvider
// silently reintroduce the double-booking race. Use it for single-instance
// deployments and tests, never behind a load balancer.
type MemoryLockProvider struct {
	mu         sync.Mutex
	locks      map[string]memoryLockEntry
	logger     *logger.Logger
	maxRetries int
	retryDelay time.Duration
}

func NewMemoryLockProvider(log *logger.Logger, maxRetries int, retryDelay time.Duration) *MemoryLockProvider {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	log.Warn("using in-memory lock provider: mutual exclusion is NOT guaranteed across multiple instances")
	return &MemoryLockProvider{
		locks:      make(map[string]memoryLockEntry),
		logger:     log,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

func (p *MemoryLockProvider) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
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

		if p.trySet(key, token, ttl) {
			return token, true, nil
		}
	}

	return "", false, nil
}

func (p *MemoryLockProvider) trySet(key, token string, ttl time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if entry, exists := p.locks[key]; exists && entry.expiresAt.After(now) {
		return false
	}
	p.locks[key] = memoryLockEntry{token: token, expiresAt: now.Add(ttl)}
	return true
}

func (p *MemoryLockProvider) Release(ctx context.Context, key, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.locks[key]
	if !exists || entry.token != token || !entry.expiresAt.After(time.Now()) {
		return nil
	}
	delete(p.locks, key)
	return nil
}

func (p *MemoryLockProvider) IsLocked(ctx context.Context, key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.locks[key]
	return exists && entry.expiresAt.After(time.Now()), nil
}

func (p *MemoryLockProvider) TTLRemaining(ctx context.Context, key string) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.locks[key]
	if !exists {
		return 0, nil
	}
	remaining := time.Until(entry.expiresAt)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (p *MemoryLockProvider) ForceRelease(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.locks, key)
	return nil
}
