package auth

import (
	"context"
	"sync"
	"time"
)

type memorySession struct {
	user    User
	expires time.Time // zero means no expiry
}

// MemoryStore keeps sessions in process. Expired entries are dropped on read.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]memorySession{}, now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, token string, u User, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memorySession{user: u}
	if ttl > 0 {
		s.expires = m.now().Add(ttl)
	}
	m.sessions[token] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, token string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live(token)
	if !ok {
		return User{}, ErrNoSession
	}
	return s.user, nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live(token)
	if !ok {
		return User{}, ErrNoSession
	}
	delete(m.sessions, token)
	return s.user, nil
}

func (m *MemoryStore) live(token string) (memorySession, bool) {
	s, ok := m.sessions[token]
	if !ok {
		return memorySession{}, false
	}
	if !s.expires.IsZero() && !m.now().Before(s.expires) {
		delete(m.sessions, token)
		return memorySession{}, false
	}
	return s, true
}
