package account

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return ErrAccountExists
	}
	if a.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	c := copyAccount(a, 0)
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.accounts[a.ID] = c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(a, HistoryLimit), nil
}

func (s *MemoryStore) SavePending(ctx context.Context, id string, p *PendingTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.Pending = copyPending(p)
	a.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ClearPending(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.Pending = nil
	a.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Commit(ctx context.Context, id string, newBalance decimal.Decimal, rec TransactionRecord) error {
	if newBalance.IsNegative() {
		return ErrNegativeBalance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.Balance = newBalance
	a.Recent = append([]TransactionRecord{rec}, a.Recent...)
	a.Pending = nil
	a.UpdatedAt = s.now()
	return nil
}
