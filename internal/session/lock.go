package session

import "sync"

// keyedLocks serializes work per key while distinct keys proceed
// independently. Entries are reference-counted and removed once the last
// waiter drains, so idle keys hold no memory.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu      sync.Mutex
	waiters int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: make(map[string]*lockEntry)}
}

func (k *keyedLocks) acquire(key string) *lockEntry {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.waiters++
	k.mu.Unlock()

	e.mu.Lock()
	return e
}

func (k *keyedLocks) release(key string, e *lockEntry) {
	e.mu.Unlock()

	k.mu.Lock()
	e.waiters--
	if e.waiters == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

// size reports the number of live entries; used by tests to verify drained
// keys are evicted.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
