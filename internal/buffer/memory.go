package buffer

import (
	"context"
	"sync"
	"time"
)

// entry holds one session's buffered messages with its eviction deadline.
type entry struct {
	messages  []Message
	expiresAt time.Time
}

// MemoryStore is the in-process fallback buffer. Same interface and TTL
// behavior as the redis store, but scoped to one process lifetime. A
// janitor goroutine evicts expired sessions on a fixed cadence.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]*entry
	ttl     time.Duration
	stop    chan struct{}
	stopped sync.Once
}

// NewMemoryStore creates an in-process buffer with the given TTL. The
// janitor runs at half the TTL, bounded below at one second.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		items: make(map[string]*entry),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	go s.janitor(interval)

	return s
}

// Append adds a message and refreshes the session's eviction deadline.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[sessionID]
	if !ok || time.Now().After(e.expiresAt) {
		e = &entry{}
		s.items[sessionID] = e
	}
	e.messages = append(e.messages, msg)
	e.expiresAt = time.Now().Add(s.ttl)
	return nil
}

// Drain returns and clears the session's messages in append order.
func (s *MemoryStore) Drain(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[sessionID]
	if !ok {
		return nil, nil
	}
	delete(s.items, sessionID)

	if time.Now().After(e.expiresAt) {
		return nil, nil
	}
	return e.messages, nil
}

// Discard drops the session's buffer.
func (s *MemoryStore) Discard(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, sessionID)
	return nil
}

// Stop terminates the janitor goroutine.
func (s *MemoryStore) Stop() {
	s.stopped.Do(func() { close(s.stop) })
}

// janitor evicts expired sessions periodically.
func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, e := range s.items {
		if now.After(e.expiresAt) {
			delete(s.items, id)
		}
	}
}
