package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// DraftSaveLockKey builds the redis key guarding a draft while it is being saved.
func DraftSaveLockKey(draftID string) string {
	return fmt.Sprintf("sales:draft:%s:save", draftID)
}

// Locker obtains short-lived distributed locks.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewLocker wraps a redis client. A nil client yields a Locker that always
// succeeds, which keeps single-process deployments working without Redis.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if client == nil {
		return &Locker{ttl: ttl}
	}
	return &Locker{client: redislock.New(client), ttl: ttl}
}

// Acquire takes the lock for key without waiting. The returned release func is
// always non-nil.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context), error) {
	noop := func(context.Context) {}
	if l == nil || l.client == nil {
		return noop, nil
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return noop, ErrLockNotObtained
	}
	if err != nil {
		return noop, fmt.Errorf("shared: obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) {
		_ = lock.Release(ctx)
	}, nil
}
