// Package conversation provides conversation store implementations.
package conversation

import (
	"context"
	"sync"
	"time"

	guardowl "github.com/guardowl/guardowl"
)

// MemoryStore is an in-memory conversation store for development and
// tests. Appends are atomic under the store mutex.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*guardowl.Conversation
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*guardowl.Conversation),
	}
}

// Find returns the stored messages, or (nil, nil) for unknown ids.
func (s *MemoryStore) Find(ctx context.Context, conversationID string) ([]guardowl.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}

	messages := make([]guardowl.Message, len(conv.Messages))
	copy(messages, conv.Messages)
	return messages, nil
}

// AppendPair appends a (user, agent) pair, creating the conversation if
// absent.
func (s *MemoryStore) AppendPair(ctx context.Context, conversationID string, userMsg, agentMsg guardowl.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	conv, ok := s.conversations[conversationID]
	created := !ok
	if !ok {
		conv = &guardowl.Conversation{
			ID:        conversationID,
			CreatedAt: now,
		}
		s.conversations[conversationID] = conv
	}

	conv.Messages = append(conv.Messages, userMsg, agentMsg)
	conv.UpdatedAt = now
	return created, nil
}

// Delete removes a conversation, reporting how many were removed.
func (s *MemoryStore) Delete(ctx context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return 0, nil
	}
	delete(s.conversations, conversationID)
	return 1, nil
}
