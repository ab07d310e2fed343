package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"landdocs/pkg/platform/sentinel"
)

// keyedLocker hands out one exclusive lock per key. Entries are reference
// counted and dropped when nobody holds or waits on them, so the map only
// grows with concurrently used keys.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*keyLock)}
}

// acquire blocks until key is free, ctx ends, or timeout passes.
func (l *keyedLocker) acquire(ctx context.Context, key string, timeout time.Duration) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case kl.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, kl)
		return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	case <-timer.C:
		l.unref(key, kl)
		return fmt.Errorf("acquire lock %s: %w", key, sentinel.ErrLockTimeout)
	}
}

func (l *keyedLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		return
	}
	<-kl.ch
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *keyedLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// size is the number of live lock entries.
func (l *keyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
