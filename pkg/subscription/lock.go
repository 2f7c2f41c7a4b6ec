package subscription

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes mutations per subscription ID while letting
// operations on different subscriptions run fully in parallel. Entries are
// reference-counted and removed when the last holder unlocks, so the map
// stays proportional to in-flight work.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*entityLock)}
}

// Lock acquires the per-entity lock and returns its unlock function.
func (k *keyedMutex) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	lock, ok := k.locks[id]
	if !ok {
		lock = &entityLock{}
		k.locks[id] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
