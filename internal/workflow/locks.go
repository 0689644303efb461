package workflow

import (
	"sync"
)

// KeyedLocks serializes operations per string key. Claim transitions lock by
// claim ID; the gamification ledger locks by claimant. For transitions the
// lock scope covers read-current-state, validate, append-history and write;
// the external scorer call is made outside it.
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocks creates an empty lock registry.
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for the key and returns its unlock function.
// Lock entries are reference-counted and removed when unused, so the
// registry does not grow with the number of keys ever seen.
func (c *KeyedLocks) Lock(key string) func() {
	c.mu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &keyedLock{}
		c.locks[key] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, key)
		}
		c.mu.Unlock()
	}
}
