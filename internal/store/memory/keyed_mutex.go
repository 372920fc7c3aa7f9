package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// keyedMutex hands out one exclusive lock per key. Entries are reference
// counted and dropped when the last waiter leaves, so the table only holds
// keys that are currently in use.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*keyLock)}
}

// Lock blocks until key is free or ctx is done. On success the returned
// function releases the key.
func (k *keyedMutex) Lock(ctx context.Context, key uuid.UUID) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key uuid.UUID, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// size reports how many keys are held or awaited.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
