package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
)

// lockTable hands out one exclusive lock per key. Each lock is a channel with a single
// slot so that waiting can be bounded by a timeout or the caller's context.
type lockTable struct {
	mu    sync.Mutex               // protects slots itself
	slots map[string]chan struct{} // stores the lock for each portfolio
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]chan struct{})}
}

func (t *lockTable) slot(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.slots[key]; !exists {
		t.slots[key] = make(chan struct{}, 1)
	}
	return t.slots[key]
}

// acquire blocks until the key's lock is free, the timeout elapses or ctx is done.
// A timeout <= 0 waits on ctx alone.
func (t *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	slot := t.slot(key)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-expired:
		return nil, models.ErrConcurrencyTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
