package store

import (
	"context"
	"errors"
	"sync"

	"sysrev/types"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStorer maps a session id to the persisted index locations and the
// running list of uploaded paper names for that session.
type SessionStorer interface {
	Get(ctx context.Context, id string) (*types.Session, error)
	Put(ctx context.Context, session types.Session) error
}

// MemorySessionStore is the in-process backend. Safe for concurrent request
// handling.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]types.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]types.Session),
	}
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemorySessionStore) Put(ctx context.Context, session types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}
