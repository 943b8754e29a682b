package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ksh277/Travleap-sub004/internal/port"
)

// RedisIdempotencyStore caches serialized responses under client idempotency
// keys. Writes use SET NX so a recorded response is immutable until its TTL
// lapses; a concurrent second write loses silently.
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*port.IdempotencyRecord, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record %s: %w", key, err)
	}

	var rec port.IdempotencyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	return &rec, nil
}

func (s *RedisIdempotencyStore) Put(ctx context.Context, key string, rec *port.IdempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode idempotency record %s: %w", key, err)
	}

	if err := s.client.SetNX(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency record %s: %w", key, err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Invalidate(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("invalidate idempotency record %s: %w", key, err)
	}
	return nil
}
