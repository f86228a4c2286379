package acquire

import (
	"context"
	"sync"
	"time"
)

// LockTable is the in-process serialization point for acquisitions: at most
// one holder per content id. Waiters block on a channel the holder closes at
// release, so hand-off is a wakeup rather than a poll.
//
// Locks are process-local. A multi-instance deployment would need a shared
// lease (e.g. an expiring row in the catalog database) instead.
type LockTable struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{
		held: make(map[string]chan struct{}),
	}
}

// TryAcquire takes the lock for a content id if it is free. The check and
// insert are a single step under the table mutex.
func (t *LockTable) TryAcquire(contentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, taken := t.held[contentID]; taken {
		return false
	}
	t.held[contentID] = make(chan struct{})
	return true
}

// AcquireWithin blocks until the lock for a content id is taken by this
// caller, the timeout elapses (ErrLockTimeout), or the context is cancelled.
//
// Each release wakes every waiter; they race to re-acquire and the losers go
// back to waiting against the same deadline.
func (t *LockTable) AcquireWithin(ctx context.Context, contentID string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		t.mu.Lock()
		release, taken := t.held[contentID]
		if !taken {
			t.held[contentID] = make(chan struct{})
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()

		select {
		case <-release:
		case <-deadline.C:
			return ErrLockTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release frees the lock for a content id and wakes all waiters. Safe to call
// for an id that is not held.
func (t *LockTable) Release(contentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	release, taken := t.held[contentID]
	if !taken {
		return
	}
	delete(t.held, contentID)
	close(release)
}

// Held reports whether a content id is currently locked. Eviction consults
// this through the store's LockChecker interface.
func (t *LockTable) Held(contentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, taken := t.held[contentID]
	return taken
}

// Len returns the number of held locks.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.held)
}
