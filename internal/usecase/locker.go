package usecase

import (
	"sort"
	"sync"
)

// nameLocker serializes lifecycle operations on the same file name within
// this process. Entries are reference counted and dropped when unused.
type nameLocker struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newNameLocker() *nameLocker {
	return &nameLocker{locks: make(map[string]*nameLock)}
}

// Lock acquires every given name in sorted order and returns the release func.
// Duplicate names are locked once.
func (l *nameLocker) Lock(names ...string) func() {
	sorted := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, n := range sorted {
		l.acquire(n)
	}

	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			l.release(sorted[i])
		}
	}
}

func (l *nameLocker) acquire(name string) {
	l.mu.Lock()
	lock, ok := l.locks[name]
	if !ok {
		lock = &nameLock{}
		l.locks[name] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
}

func (l *nameLocker) release(name string) {
	l.mu.Lock()
	lock := l.locks[name]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, name)
	}
	l.mu.Unlock()

	lock.mu.Unlock()
}

// held returns the number of names currently tracked
func (l *nameLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
