// Package syncutil provides keyed mutual exclusion for per-account state.
package syncutil

import (
	"context"
	"hash/fnv"
)

// DefaultShards is the shard count used when NewContextShardedMutex is given
// a non-positive size.
const DefaultShards = 256

// ContextShardedMutex is a fixed-size pool of channel-based mutexes keyed by
// string. Waiters can give up when their context is done, so no caller blocks
// indefinitely on a busy key. Distinct keys may share a shard; that only
// costs contention, never correctness.
type ContextShardedMutex struct {
	shards []chan struct{}
}

// NewContextShardedMutex creates a context-aware sharded mutex with n shards.
func NewContextShardedMutex(n int) *ContextShardedMutex {
	if n <= 0 {
		n = DefaultShards
	}
	m := &ContextShardedMutex{shards: make([]chan struct{}, n)}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
		m.shards[i] <- struct{}{} // Start unlocked.
	}
	return m
}

// LockContext acquires the mutex for key. On success it returns an unlock
// function that the caller must call exactly once. If ctx is done first it
// returns ctx.Err().
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	shard := m.shards[m.shardIdx(key)]

	// Fail fast on an already-cancelled context even if the shard is free.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case <-shard:
		return func() { shard <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *ContextShardedMutex) shardIdx(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
