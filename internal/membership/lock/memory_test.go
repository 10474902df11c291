package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireIsExclusivePerKey(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx, RunKey)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, RunKey)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	other, ok, err := l.TryAcquire(ctx, ClientKey("c1"))
	require.NoError(t, err)
	assert.True(t, ok, "different keys do not contend")
	other()

	release()
	release()
	_, ok, err = l.TryAcquire(ctx, RunKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, ClientKey("c1"))
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxInside.Load())
}

func TestAcquireHonoursContext(t *testing.T) {
	l := NewInMemory()
	release, err := l.Acquire(context.Background(), RunKey)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, RunKey)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAcquired))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
