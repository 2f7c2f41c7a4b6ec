package order

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes mutations per order ID; different orders proceed in
// parallel. Entries are reference-counted and dropped on last unlock.
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
