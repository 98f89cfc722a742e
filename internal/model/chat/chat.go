package chat

import "time"

// DefaultTitle is the placeholder given to a freshly created chat until a
// title is derived from its first exchange.
const DefaultTitle = "New Chat"

// Chat describes one conversation thread. The transcript itself lives in
// the transcript store, keyed by ID.
type Chat struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastActivity time.Time `json:"lastActivity"`
}
