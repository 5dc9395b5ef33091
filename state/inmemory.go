package state

import (
	"context"
	"sync"

	"github.com/KamdynS/promptline/llm"
)

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]llm.ChatMessage
	// MaxMessages bounds history length per session; 0 disables trimming.
	MaxMessages int
}

// NewInMemoryStore creates a new in-memory transcript store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]llm.ChatMessage)}
}

// Append implements Store.
func (s *InMemoryStore) Append(ctx context.Context, sessionID string, msgs ...llm.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID], msgs...)
	if s.MaxMessages > 0 && len(history) > s.MaxMessages {
		history = append([]llm.ChatMessage(nil), history[len(history)-s.MaxMessages:]...)
	}
	s.sessions[sessionID] = history
	return nil
}

// Messages implements Store.
func (s *InMemoryStore) Messages(ctx context.Context, sessionID string, n int) ([]llm.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[sessionID]
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	// Return a copy to avoid external mutations
	return append([]llm.ChatMessage(nil), history...), nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
