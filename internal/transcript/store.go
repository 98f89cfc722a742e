// Package transcript holds the ordered per-chat message lists that back the
// conversation view. It is a pure state container: nothing here talks to the
// network or to persistent storage.
package transcript

import (
	"sync"

	"github.com/cognify-ai/cognify/internal/model/chat"
)

// bucket is the transcript of a single chat.
type bucket struct {
	items   []chat.Message
	loading bool
	hasMore bool
}

// Store keeps one message list per chat id. Buckets are created on demand:
// any mutating call on an unknown chat id first creates an empty bucket, so
// every operation is safe to call in any order (idempotent get-or-create).
type Store struct {
	mu     sync.RWMutex
	byChat map[string]*bucket
}

// NewStore returns an empty transcript store.
func NewStore() *Store {
	return &Store{byChat: make(map[string]*bucket)}
}

// getOrCreate must be called with the write lock held.
func (s *Store) getOrCreate(chatID string) *bucket {
	b, ok := s.byChat[chatID]
	if !ok {
		b = &bucket{items: make([]chat.Message, 0, 16)}
		s.byChat[chatID] = b
	}
	return b
}

// Load replaces the chat's transcript wholesale, resets the loading flag
// and clears hasMore. Used after a full history fetch.
func (s *Store) Load(chatID string, messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrCreate(chatID)
	b.items = append(b.items[:0:0], messages...)
	b.loading = false
	b.hasMore = false
}

// Append adds a message to the end of the chat's transcript. A timestamp
// that would run backwards relative to the current tail is clamped up to
// the tail's, so createdAt order stays non-decreasing and call order is
// preserved for equal timestamps.
func (s *Store) Append(chatID string, message chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrCreate(chatID)
	if n := len(b.items); n > 0 && message.CreatedAt.Before(b.items[n-1].CreatedAt) {
		message.CreatedAt = b.items[n-1].CreatedAt
	}
	b.items = append(b.items, message)
}

// Prepend inserts an ordered batch of older messages before the current
// items. The batch is trusted to be in temporal order (it is server-paged
// history).
func (s *Store) Prepend(chatID string, messages []chat.Message) {
	if len(messages) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrCreate(chatID)
	merged := make([]chat.Message, 0, len(messages)+len(b.items))
	merged = append(merged, messages...)
	merged = append(merged, b.items...)
	b.items = merged
}

// Clear removes the chat's bucket entirely.
func (s *Store) Clear(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byChat, chatID)
}

// SetLoading toggles the chat's loading flag.
func (s *Store) SetLoading(chatID string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(chatID).loading = loading
}

// SetHasMore records whether older history remains for pagination.
func (s *Store) SetHasMore(chatID string, hasMore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(chatID).hasMore = hasMore
}

// PurgeErrors removes every system/error message from the chat's transcript
// and returns how many were removed. A stale error banner is purged before
// a retry and whenever a reply, even a late one, arrives.
func (s *Store) PurgeErrors(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byChat[chatID]
	if !ok {
		return 0
	}

	kept := b.items[:0]
	removed := 0
	for _, m := range b.items {
		if m.IsError() {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	b.items = kept
	return removed
}

// Messages returns a copy of the chat's transcript. A missing chat yields
// an empty slice; no bucket is created.
func (s *Store) Messages(chatID string) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byChat[chatID]
	if !ok {
		return nil
	}
	out := make([]chat.Message, len(b.items))
	copy(out, b.items)
	return out
}

// Loading reports the chat's loading flag.
func (s *Store) Loading(chatID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byChat[chatID]
	return ok && b.loading
}

// HasMore reports whether older history remains for the chat.
func (s *Store) HasMore(chatID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byChat[chatID]
	return ok && b.hasMore
}

// Len returns the number of messages currently held for the chat.
func (s *Store) Len(chatID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byChat[chatID]
	if !ok {
		return 0
	}
	return len(b.items)
}
