// Package lock serialises price writers across API and worker processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when MaxWait elapses while another holder keeps the key.
var ErrNotAcquired = errors.New("lock: not acquired")

// unlock deletes the key only while it still carries the caller's token, so a
// holder whose TTL lapsed cannot free a lock that someone else now owns.
var unlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker takes SET NX PX locks in Redis.
type Locker struct {
	R *redis.Client
	// RetryBackoff is the polling interval while the key is held (50ms when unset).
	RetryBackoff time.Duration
	// MaxWait bounds the polling; zero polls until ctx ends.
	MaxWait time.Duration
}

// ProductKey is the key guarding price writes for one product.
func ProductKey(productID string) string {
	return "smartprice:lock:product:" + productID
}

// WithLock runs fn while holding key and releases it afterwards, whatever fn
// returns. ttl must outlive fn.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer func() {
		// release even when ctx was cancelled mid-run
		_ = unlock.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	interval := l.RetryBackoff
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, l.MaxWait, ErrNotAcquired)
		defer cancel()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		switch {
		case ok:
			return nil
		case err != nil && ctx.Err() == nil:
			return fmt.Errorf("lock %s: %w", key, err)
		}
		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); errors.Is(cause, ErrNotAcquired) {
				return ErrNotAcquired
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
