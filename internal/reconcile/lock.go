package reconcile

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes batch sweeps. Correctness never depends on the lock —
// concurrent sweeps just redo idempotent work — so the lock only bounds
// redundant load.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

const sweepLockKey = "hemotrack:sweep:lock"

// RedisLocker implements Locker with a TTL'd SETNX key. The TTL frees the
// lock if a sweep crashes mid-run.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, sweepLockKey, "1", l.ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context) error {
	return l.client.Del(ctx, sweepLockKey).Err()
}
