package core

import (
	"context"
	"fmt"
	"sync"

	"symptom-triage/pkg"
)

// MemorySessionStore keeps sessions in process memory.  It backs the service
// when no database is configured.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*pkg.Session
}

// NewMemorySessionStore returns an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*pkg.Session)}
}

// GetSession returns a copy of the session, or nil when unknown.
func (m *MemorySessionStore) GetSession(_ context.Context, id string) (*pkg.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// LatestSession returns the user's most recently updated session, or nil.
func (m *MemorySessionStore) LatestSession(_ context.Context, userID string) (*pkg.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *pkg.Session
	for _, s := range m.sessions {
		if s.UserID == userID && (latest == nil || s.UpdatedAt.After(latest.UpdatedAt)) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

// SaveSession stores a copy of s.  A session owned by another user is never
// replaced.
func (m *MemorySessionStore) SaveSession(_ context.Context, s *pkg.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[s.ID]; ok && old.UserID != s.UserID {
		return fmt.Errorf("save session %s: %w", s.ID, ErrSessionNotFound)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}
