package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamebyte/switchboard/types"
)

// MemoryStore is an in-memory implementation of ConversationStore.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu sync.RWMutex
	// conversations maps conversation ID to its ordered message IDs.
	conversations map[string][]string
	messages      map[string]types.Message
	closed        bool
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string][]string),
		messages:      make(map[string]types.Message),
	}
}

// AppendMessage persists a single message.
func (s *MemoryStore) AppendMessage(ctx context.Context, conversationID string, role types.Role, content string) (*types.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	msg := types.NewMessage(conversationID, role, content)
	msg.ID = uuid.New().String()

	s.messages[msg.ID] = msg
	s.conversations[conversationID] = append(s.conversations[conversationID], msg.ID)

	out := msg
	return &out, nil
}

// ListMessages returns a page of messages in append order.
func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string, cursor string, limit int) ([]types.Message, string, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, "", ErrStoreClosed
	}

	ids := s.conversations[conversationID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}

	result := make([]types.Message, 0, end-start)
	for _, id := range ids[start:end] {
		result = append(result, s.messages[id])
	}

	nextCursor := ""
	if end < len(ids) && len(result) > 0 {
		nextCursor = result[len(result)-1].ID
	}
	return result, nextCursor, nil
}

// GetMessage retrieves a message by ID.
func (s *MemoryStore) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	out := msg
	return &out, nil
}

// DeleteConversation removes a conversation's messages.
func (s *MemoryStore) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	ids := s.conversations[conversationID]
	for _, id := range ids {
		delete(s.messages, id)
	}
	delete(s.conversations, conversationID)
	return len(ids), nil
}

// Cleanup removes messages older than the retention window.
func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	count := 0
	for convID, ids := range s.conversations {
		kept := ids[:0]
		for _, id := range ids {
			msg, ok := s.messages[id]
			if ok && msg.CreatedAt.Before(cutoff) {
				delete(s.messages, id)
				count++
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(s.conversations, convID)
		} else {
			s.conversations[convID] = kept
		}
	}
	return count, nil
}

// Ping checks if the store is healthy.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ensure MemoryStore implements ConversationStore
var _ ConversationStore = (*MemoryStore)(nil)
