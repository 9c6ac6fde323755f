package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is the default conversation backend: a process-local map with
// no eviction and no persistence. Everything is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Message),
	}
}

func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	_ = ctx

	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = make([]Message, 0)
	s.mu.Unlock()

	return id, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, messages ...Message) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	s.sessions[sessionID] = append(history, messages...)
	return nil
}

func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	out := make([]Message, len(history))
	copy(out, history)
	return out, nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}

	delete(s.sessions, sessionID)
	return nil
}
