// Package directory tracks the user's chat list and which chat is currently
// open. Persistence is the caller's concern; everything here is in-memory.
package directory

import (
	"sync"
	"time"

	"github.com/cognify-ai/cognify/internal/model/chat"
)

// Directory holds chats newest-first plus the current-chat pointer.
type Directory struct {
	mu        sync.RWMutex
	items     []chat.Chat
	currentID string
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{}
}

// List returns a copy of the chats, newest first.
func (d *Directory) List() []chat.Chat {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]chat.Chat, len(d.items))
	copy(out, d.items)
	return out
}

// Replace swaps the whole list, e.g. after fetching chats from storage.
func (d *Directory) Replace(chats []chat.Chat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items[:0:0], chats...)
}

// Add inserts a chat at the front of the list.
func (d *Directory) Add(c chat.Chat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append([]chat.Chat{c}, d.items...)
}

// Remove deletes the chat. If it was the current chat, the current pointer
// is cleared too.
func (d *Directory) Remove(chatID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.items[:0]
	for _, c := range d.items {
		if c.ID != chatID {
			kept = append(kept, c)
		}
	}
	d.items = kept
	if d.currentID == chatID {
		d.currentID = ""
	}
}

// SetCurrent points the directory at the chat being viewed.
func (d *Directory) SetCurrent(chatID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentID = chatID
}

// Current returns the id of the chat being viewed, or "" if none.
func (d *Directory) Current() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.currentID
}

// Rename updates a chat's title. A missing chat is a no-op.
func (d *Directory) Rename(chatID, title string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.items {
		if d.items[i].ID == chatID {
			d.items[i].Title = title
			return
		}
	}
}

// Touch advances the chat's last-activity timestamp.
func (d *Directory) Touch(chatID string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.items {
		if d.items[i].ID == chatID {
			d.items[i].LastActivity = at
			return
		}
	}
}

// Get looks up a chat by id.
func (d *Directory) Get(chatID string) (chat.Chat, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, c := range d.items {
		if c.ID == chatID {
			return c, true
		}
	}
	return chat.Chat{}, false
}
