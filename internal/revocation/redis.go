package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "revoked:"

// RedisStore is the production Store. Every call carries a bounded
// timeout so a slow Redis cannot stall token validation; the caller's
// fail policy decides what a timed-out lookup means.
type RedisStore struct {
	rdb     *redis.Client
	timeout time.Duration
}

func NewRedisStore(rdb *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RedisStore{rdb: rdb, timeout: timeout}
}

func (s *RedisStore) SetRevoked(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.rdb.Set(ctx, keyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revocation set %s: %w", jti, err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.rdb.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("revocation lookup %s: %w", jti, err)
	}
	return n > 0, nil
}
