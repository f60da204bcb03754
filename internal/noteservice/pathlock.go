package noteservice

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// pathLocks serializes read-modify-write cycles per document. Writes to
// different paths never wait on each other. An entry lives only while it has
// holders or waiters.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	sem  *semaphore.Weighted
	refs int
}

// acquire blocks until p is free or ctx is done. The returned func releases
// the lock.
func (l *pathLocks) acquire(ctx context.Context, p string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*pathLock)
	}
	pl, ok := l.locks[p]
	if !ok {
		pl = &pathLock{sem: semaphore.NewWeighted(1)}
		l.locks[p] = pl
	}
	pl.refs++
	l.mu.Unlock()

	if err := pl.sem.Acquire(ctx, 1); err != nil {
		l.drop(p, pl)
		return nil, err
	}
	return func() {
		pl.sem.Release(1)
		l.drop(p, pl)
	}, nil
}

func (l *pathLocks) drop(p string, pl *pathLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, p)
	}
}

func (l *pathLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
