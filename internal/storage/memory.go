package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cognify-ai/cognify/internal/model/chat"
)

// MemoryStore is an in-memory Store, used by tests and as a fallback when
// no database path is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]chat.Chat
	owners   map[string]string
	messages map[string][]chat.Message
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[string]chat.Chat),
		owners:   make(map[string]string),
		messages: make(map[string][]chat.Message),
	}
}

// ListChats returns the user's chats, most recently active first.
func (s *MemoryStore) ListChats(_ context.Context, userID string) ([]chat.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chats []chat.Chat
	for id, c := range s.chats {
		if s.owners[id] == userID {
			chats = append(chats, c)
		}
	}
	// Newest first.
	for i := 0; i < len(chats); i++ {
		for j := i + 1; j < len(chats); j++ {
			if chats[j].LastActivity.After(chats[i].LastActivity) {
				chats[i], chats[j] = chats[j], chats[i]
			}
		}
	}
	return chats, nil
}

// CreateChat inserts a chat with a fresh id.
func (s *MemoryStore) CreateChat(_ context.Context, userID, title string) (chat.Chat, error) {
	if title == "" {
		title = chat.DefaultTitle
	}
	c := chat.Chat{
		ID:           uuid.NewString(),
		Title:        title,
		LastActivity: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[c.ID] = c
	s.owners[c.ID] = userID
	s.messages[c.ID] = make([]chat.Message, 0, 16)
	return c, nil
}

// DeleteChat removes a chat and its messages.
func (s *MemoryStore) DeleteChat(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return ErrChatNotFound
	}
	delete(s.chats, chatID)
	delete(s.owners, chatID)
	delete(s.messages, chatID)
	return nil
}

// RenameChat updates a chat title.
func (s *MemoryStore) RenameChat(_ context.Context, chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	c.Title = title
	s.chats[chatID] = c
	return nil
}

// ListMessages returns a copy of a chat's messages.
func (s *MemoryStore) ListMessages(_ context.Context, chatID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.messages[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendMessage persists one turn and advances last activity.
func (s *MemoryStore) AppendMessage(_ context.Context, m chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[m.ChatID]
	if !ok {
		return ErrChatNotFound
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.messages[m.ChatID] = append(s.messages[m.ChatID], m)
	c.LastActivity = m.CreatedAt
	s.chats[m.ChatID] = c
	return nil
}

// TouchChat advances last activity.
func (s *MemoryStore) TouchChat(_ context.Context, chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	c.LastActivity = at
	s.chats[chatID] = c
	return nil
}
