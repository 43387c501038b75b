package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)

	var concurrent atomic.Int64
	var maxSeen atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func() error {
				n := concurrent.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				concurrent.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int64(2))
}

func TestWorkerPool_ContextCancelledBeforeSlot(t *testing.T) {
	pool := NewWorkerPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Occupy the only slot so the next Do call must wait on ctx.Done().
	done := make(chan struct{})
	go pool.Do(context.Background(), func() error {
		<-done
		return nil
	})
	time.Sleep(10 * time.Millisecond)

	err := pool.Do(ctx, func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	close(done)
}

func TestWorkerPool_ZeroSizeDefaultsToEight(t *testing.T) {
	pool := NewWorkerPool(0)
	assert.Equal(t, 8, cap(pool.slots))
}

func TestWorkerPool_Active(t *testing.T) {
	pool := NewWorkerPool(4)
	release := make(chan struct{})
	started := make(chan struct{})

	go pool.Do(context.Background(), func() error {
		close(started)
		<-release
		return nil
	})
	<-started
	assert.Equal(t, int64(1), pool.Active())
	close(release)
}
