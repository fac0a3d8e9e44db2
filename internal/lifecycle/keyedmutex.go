package lifecycle

import "sync"

// keyedMutex serializes work per key without serializing unrelated keys.
//
// Transitions on one order must be applied in the order they are issued,
// because the one-active-timer invariant is maintained by read-then-write
// sequences that are not safe under interleaving. Transitions on different
// orders are independent and run in parallel, so a single process-wide lock
// would be both unnecessary and unfair.
//
// Entries are reference-counted and removed when the last holder releases,
// so the map does not grow with the total number of orders ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key, creating it on first use.
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the mutex for key and drops the entry when no goroutine
// holds or waits on it.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
