package lock

import (
	"context"
	"fmt"
	"sync"
)

// InMemory serialises holders within one process. Waiters block on the
// holder's channel, which is closed on release.
type InMemory struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{held: make(map[string]chan struct{})}
}

func (l *InMemory) TryAcquire(_ context.Context, key string) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	return l.take(key), true, nil
}

func (l *InMemory) Acquire(ctx context.Context, key string) (Release, error) {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			release := l.take(key)
			l.mu.Unlock()
			return release, nil
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		}
	}
}

// take must be called with l.mu held.
func (l *InMemory) take(key string) Release {
	ch := make(chan struct{})
	l.held[key] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
			close(ch)
		})
	}
}
