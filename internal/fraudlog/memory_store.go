package fraudlog

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Sink for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*Entry // accountID -> entries, oldest first
}

// NewMemoryStore creates an in-memory fraud log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]*Entry)}
}

func (s *MemoryStore) Record(ctx context.Context, e *Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.AccountID] = append(s.entries[e.AccountID], copyEntry(e))
	return nil
}

func (s *MemoryStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*Entry, error) {
	limit = ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.entries[accountID]
	start := len(all) - limit
	if start < 0 {
		start = 0
	}

	result := make([]*Entry, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		result = append(result, copyEntry(all[i]))
	}
	return result, nil
}

// Count returns the total number of entries for an account.
func (s *MemoryStore) Count(accountID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[accountID])
}
