package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is an in-process Store. With MaxSessions set the least recently used
// session is evicted on overflow; with TTL set sessions not updated for longer expire.
type Memory struct {
	// Cached sessions are never mutated in place; Append stores a new copy.
	cache *expirable.LRU[string, *Session]
	ttl   time.Duration
	max   int

	// mu makes read-modify-write of a single session atomic.
	mu sync.Mutex
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMaxSessions bounds the number of retained sessions. n <= 0 means unbounded.
func WithMaxSessions(n int) MemoryOption {
	return func(m *Memory) {
		m.max = n
	}
}

// WithTTL expires sessions not updated for longer than ttl. ttl <= 0 disables expiry.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		m.ttl = ttl
	}
}

// NewMemory creates an in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{}
	for _, opt := range opts {
		opt(m)
	}

	size := m.max
	if size < 0 {
		size = 0
	}
	ttl := m.ttl
	if ttl < 0 {
		ttl = 0
	}

	m.cache = expirable.NewLRU[string, *Session](size, func(id string, _ *Session) {
		slog.Debug("Session evicted", "session_id", id)
	}, ttl)

	return m
}

// GetOrCreate implements Store.
func (m *Memory) GetOrCreate(id string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.touch(id).clone()
}

// Append implements Store.
func (m *Memory) Append(id string, turn Turn) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.touch(id).clone()
	s.Turns = append(s.Turns, turn)
	s.UpdatedAt = time.Now()

	// Re-adding restarts the idle timer.
	m.cache.Add(id, &s)

	return s.clone()
}

// Get implements Store.
func (m *Memory) Get(id string) (Session, bool) {
	s, ok := m.cache.Get(id)
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Len returns the number of retained sessions.
func (m *Memory) Len() int {
	return m.cache.Len()
}

// touch returns the live session for id, creating it when missing. A lookup
// marks the session most recently used without extending its TTL. Callers hold mu.
func (m *Memory) touch(id string) *Session {
	if s, ok := m.cache.Get(id); ok {
		return s
	}

	now := time.Now()
	s := &Session{ID: id, CreatedAt: now, UpdatedAt: now}
	m.cache.Add(id, s)

	return s
}

func (s *Session) clone() Session {
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	copy(out.Turns, s.Turns)
	return out
}
