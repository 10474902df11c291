// Package lock provides keyed mutual exclusion for reconcile passes.
//
// Two keys matter: the run key serialises whole passes across instances and
// a per-client key serialises writes to one membership_status row. Locks are
// advisory; every holder must release.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned by Acquire when ctx ends before the lock frees.
var ErrNotAcquired = errors.New("lock not acquired")

// Release frees a held lock. It is safe to call more than once.
type Release func()

// Locker is implemented by InMemory and Redis.
type Locker interface {
	// TryAcquire returns ok=false without waiting when key is held.
	TryAcquire(ctx context.Context, key string) (Release, bool, error)
	// Acquire waits until key is free or ctx is done.
	Acquire(ctx context.Context, key string) (Release, error)
}

const (
	RunKey          = "reconcile:run"
	clientKeyPrefix = "membership:client:"
)

// ClientKey is the lock key guarding one client's status row.
func ClientKey(clientID string) string {
	return clientKeyPrefix + clientID
}
