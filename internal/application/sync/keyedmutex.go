package sync

import (
	"context"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYED MUTEX
// At-most-one-concurrent-writer lock keyed by (user, course). Suitable for a
// single-process deployment; multi-process deployments use the Redis lock
// from infrastructure/persistence/redis instead.
// ══════════════════════════════════════════════════════════════════════════════

// KeyedMutex implements Locker with one in-memory mutex per key.
// Lock entries are reference counted and removed once unused, so the map
// does not grow with the number of pairs ever synced.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyedLock),
	}
}

// Lock acquires the per-key mutex and returns its release function.
// The context is checked before blocking; a sync is short and must run to
// completion once started, so acquisition itself is not interruptible.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}, nil
}
