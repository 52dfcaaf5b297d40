// Package lock provides keyed mutual exclusion for operations that must not
// interleave for the same logical resource, such as a (pool, player) pair.
package lock

import (
	"context"
	"sync"
	"time"
)

type keyedMutex struct {
	mu   sync.Mutex
	refs int
}

// KeyedLock hands out one mutex per key and drops it once nobody holds or waits on it.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[string]*keyedMutex
}

// NewKeyedLock creates a new KeyedLock instance.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{
		entries: make(map[string]*keyedMutex),
	}
}

func (k *KeyedLock) acquire(key string) *keyedMutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedMutex{}
		k.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (k *KeyedLock) release(key string, entry *keyedMutex) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}

// Lock acquires the lock for key.
func (k *KeyedLock) Lock(key string) {
	k.acquire(key).mu.Lock()
}

// Unlock releases the lock for key.
func (k *KeyedLock) Unlock(key string) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	k.mu.Unlock()
	if !ok {
		return
	}
	k.release(key, entry)
	entry.mu.Unlock()
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (k *KeyedLock) TryLock(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedMutex{}
		k.entries[key] = entry
	}
	if !entry.mu.TryLock() {
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		return false
	}
	entry.refs++
	return true
}

// LockContext waits for the lock until ctx is done.
func (k *KeyedLock) LockContext(ctx context.Context, key string) error {
	for {
		if k.TryLock(key) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// WithLock executes fn while holding the lock for key.
func (k *KeyedLock) WithLock(key string, fn func() error) error {
	k.Lock(key)
	defer k.Unlock(key)
	return fn()
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
