package chat

import "time"

// Role identifies who produced a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// StatusError marks a system message that represents a failed exchange.
const StatusError = "error"

// Message is a single turn in a chat transcript.
//
// Status is only meaningful for system messages (currently "error").
// CanRegenerate marks an error message whose originating user turn can be
// re-sent.
type Message struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chatId"`
	Content       string    `json:"content"`
	Role          Role      `json:"role"`
	Status        string    `json:"status,omitempty"`
	CanRegenerate bool      `json:"canRegenerate,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// IsError reports whether the message is a system error entry.
func (m Message) IsError() bool {
	return m.Role == RoleSystem && m.Status == StatusError
}
