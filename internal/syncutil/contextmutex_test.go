package syncutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextShardedMutex_BasicLockUnlock(t *testing.T) {
	m := NewContextShardedMutex(0)

	unlock, err := m.LockContext(context.Background(), "U100001")
	require.NoError(t, err)
	unlock()

	// Re-acquirable after unlock.
	unlock, err = m.LockContext(context.Background(), "U100001")
	require.NoError(t, err)
	unlock()
}

func TestContextShardedMutex_MutualExclusion(t *testing.T) {
	m := NewContextShardedMutex(16)

	var counter int64
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock, err := m.LockContext(context.Background(), "account")
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			defer unlock()
			// Non-atomic read-modify-write; lost updates mean exclusion is broken.
			v := atomic.LoadInt64(&counter)
			atomic.StoreInt64(&counter, v+1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), atomic.LoadInt64(&counter))
}

func TestContextShardedMutex_TimesOutWhileHeld(t *testing.T) {
	m := NewContextShardedMutex(4)

	unlock, err := m.LockContext(context.Background(), "busy")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = m.LockContext(ctx, "busy")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestContextShardedMutex_CancelledContext(t *testing.T) {
	m := NewContextShardedMutex(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.LockContext(ctx, "free")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContextShardedMutex_UnlockAllowsNext(t *testing.T) {
	m := NewContextShardedMutex(8)

	unlock, err := m.LockContext(context.Background(), "relay")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, err := m.LockContext(context.Background(), "relay")
		if err != nil {
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired lock before first released")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second goroutine did not acquire lock after first released")
	}
}
