package ledger

import (
	"context"
	"sync"
)

// lockTable hands out one exclusive lock per group purchase ID. Entries are
// reference counted and removed when nobody holds or waits for them, so the
// table only grows with the number of records currently being mutated.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	sem  chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*recordLock)}
}

// acquire blocks until the lock for key is held or ctx is done. On success
// the returned release func must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, key string) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &recordLock{sem: make(chan struct{}, 1)}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			t.unref(key, l)
		}, nil
	case <-ctx.Done():
		t.unref(key, l)
		return nil, ctx.Err()
	}
}

func (t *lockTable) unref(key string, l *recordLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
}

// size returns the number of live entries.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
