package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED SYNC LOCK
// Serializes syncs for one (user, course) pair across engine instances.
// SET NX with a per-holder token; release is a compare-and-delete script so
// an expired holder cannot free a lock someone else has since acquired.
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrLockNotAcquired is returned when the lock could not be acquired in time.
	ErrLockNotAcquired = errors.New("redis: sync lock not acquired")
)

// releaseScript deletes the lock key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// SyncLock implements the orchestrator's Locker on top of Redis.
type SyncLock struct {
	cache *Cache

	// ttl bounds how long a crashed holder can block the pair.
	ttl time.Duration

	// retryInterval is the polling interval while waiting for a held lock.
	retryInterval time.Duration
}

// NewSyncLock creates a new SyncLock.
func NewSyncLock(cache *Cache) *SyncLock {
	return &SyncLock{
		cache:         cache,
		ttl:           30 * time.Second,
		retryInterval: 50 * time.Millisecond,
	}
}

// WithTTL overrides the lock TTL.
func (l *SyncLock) WithTTL(ttl time.Duration) *SyncLock {
	if ttl > 0 {
		l.ttl = ttl
	}
	return l
}

// Lock acquires the pair lock, polling until acquired or the context ends.
// The returned function releases the lock.
func (l *SyncLock) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := LockKey(key)
	token := uuid.NewString()

	for {
		acquired, err := l.cache.SetNX(ctx, lockKey, token, l.ttl)
		if err != nil {
			return nil, err
		}
		if acquired {
			return func() { l.release(lockKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockNotAcquired
		case <-time.After(l.retryInterval):
		}
	}
}

// release frees the lock if we still hold it. Uses a background context:
// the caller's context may already be cancelled by the time the sync ends.
func (l *SyncLock) release(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _ = l.cache.Eval(ctx, releaseScript, []string{lockKey}, token)
}
