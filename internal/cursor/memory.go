package cursor

import (
	"context"
	"sync"
)

// MemoryStore is a process-local cursor store. Losing it is harmless: the
// reconciliation gate rebuilds cursors from the session record.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uint]State
}

// NewMemoryStore creates an in-process cursor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uint]State)}
}

func (s *MemoryStore) Get(ctx context.Context, userID uint) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.items[userID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *MemoryStore) Set(ctx context.Context, userID uint, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[userID] = state
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, userID)
	return nil
}
