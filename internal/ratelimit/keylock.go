package ratelimit

import (
	"context"
	"sync"
)

// keyLock serializes work per key. Entries are refcounted and removed once
// the last holder or waiter leaves, so idle keys cost nothing.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	sem  chan struct{}
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyLockEntry)}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (l *keyLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()

	entry, ok := l.locks[key]
	if !ok {
		entry = &keyLockEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}

	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			l.release(key, entry)
		}, nil
	case <-ctx.Done():
		l.release(key, entry)

		return nil, ctx.Err()
	}
}

func (l *keyLock) release(key string, entry *keyLockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *keyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
