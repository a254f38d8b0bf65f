package session

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sells-group/shiftscan/internal/model"
)

// MemoryStore keeps sessions in a size-bounded LRU whose entries expire
// after a fixed TTL.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *model.ProcessingSession]
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries sessions
// for ttl each. Non-positive values fall back to 10000 entries and one hour.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{cache: expirable.NewLRU[string, *model.ProcessingSession](maxEntries, nil, ttl)}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, s *model.ProcessingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache.Contains(s.ID) {
		return ErrExists
	}
	m.cache.Add(s.ID, clone(s))
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.ProcessingSession, error) {
	s, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, id string, fn func(s *model.ProcessingSession) error) (*model.ProcessingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.cache.Peek(id)
	if !ok {
		return nil, ErrNotFound
	}
	next := clone(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	m.cache.Add(id, next)
	return clone(next), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cache.Remove(id) {
		return ErrNotFound
	}
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.cache.Purge()
	return nil
}
