package quota

import (
	"context"
	"sync"
	"time"

	"github.com/tbourn/go-match-backend/internal/clock"
)

type memEntry struct {
	n         int64
	expiresAt time.Time
}

// MemoryStore is a process-local CounterStore for tests and single-node
// development. Expired keys are dropped lazily on access.
type MemoryStore struct {
	mu    sync.Mutex
	clock clock.Clock
	data  map[string]memEntry
}

// NewMemoryStore returns an empty store. A nil clock uses the system clock.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryStore{clock: c, data: make(map[string]memEntry)}
}

// Get implements CounterStore.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return 0, nil
	}
	return e.n, nil
}

// IncrBelow implements CounterStore.
func (s *MemoryStore) IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _ := s.live(key)
	if e.n >= limit {
		return e.n, false, nil
	}
	e.n++
	e.expiresAt = s.clock.Now().Add(ttl)
	s.data[key] = e
	return e.n, true, nil
}

// Len reports the number of unexpired keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.data {
		if _, ok := s.live(k); ok {
			n++
		}
	}
	return n
}

// live must be called with mu held.
func (s *MemoryStore) live(key string) (memEntry, bool) {
	e, ok := s.data[key]
	if !ok {
		return memEntry{}, false
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.data, key)
		return memEntry{}, false
	}
	return e, true
}
