package session

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	values    map[string]string
	version   int64
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*memoryRecord
}

// NewMemoryStore creates an in-memory store. A zero ttl never expires sessions.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memoryRecord),
	}
}

// Load returns the stored session or a fresh one
func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[id]
	if !ok || m.expired(rec) {
		delete(m.sessions, id)
		return New(id), nil
	}
	return FromValues(id, rec.version, rec.values), nil
}

// Save writes the session if nobody saved since it was loaded
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if rec, ok := m.sessions[s.ID]; ok && !m.expired(rec) {
		current = rec.version
	}
	if current != s.Version {
		return ErrVersionConflict
	}

	rec := &memoryRecord{
		values:  s.Values(),
		version: current + 1,
	}
	if m.ttl > 0 {
		rec.expiresAt = m.now().Add(m.ttl)
	}
	m.sessions[s.ID] = rec
	s.markClean(rec.version)
	return nil
}

// Destroy removes a session
func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) expired(rec *memoryRecord) bool {
	return !rec.expiresAt.IsZero() && m.now().After(rec.expiresAt)
}
