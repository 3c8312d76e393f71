package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chatapp/internal/middleware"
	"chatapp/internal/observability"

	"github.com/bsm/redislock"
)

const (
	redisBackend = "redis"
	keyPrefix    = "lock:"
	retryEvery   = 25 * time.Millisecond
)

// Redis is a cross-process lock backed by a single Redis node. The TTL
// bounds how long a crashed holder can block others and must exceed the
// longest critical section.
type Redis struct {
	client  *redislock.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewRedis returns a Redis lock using rdb.
func NewRedis(rdb redislock.RedisClient, ttl, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Redis{
		client:  redislock.New(rdb),
		ttl:     ttl,
		timeout: timeout,
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	start := time.Now()

	obtainCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	lk, err := r.client.Obtain(obtainCtx, keyPrefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(retryEvery),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			observability.LockTimeouts.WithLabelValues(redisBackend).Inc()
			return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
		}
		return nil, fmt.Errorf("obtain %s: %w", key, err)
	}
	observability.LockWait.WithLabelValues(redisBackend).Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even when the request context is already done.
			relCtx, relCancel := context.WithTimeout(context.Background(), time.Second)
			defer relCancel()
			if err := lk.Release(relCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				middleware.Logger.Warn("failed to release comment lock",
					slog.String("key", key), slog.String("error", err.Error()))
			}
		})
	}, nil
}
