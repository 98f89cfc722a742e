// Package storage is the record store behind the chat directory and the
// transcripts: chats and messages keyed by chat/user id. The conversation
// core consumes the Store interface only; failures are surfaced to the user
// as notices by the caller, never retried here.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cognify-ai/cognify/internal/model/chat"
)

var (
	ErrChatNotFound = errors.New("chat not found")
)

// Store is the persistence collaborator.
type Store interface {
	ListChats(ctx context.Context, userID string) ([]chat.Chat, error)
	CreateChat(ctx context.Context, userID, title string) (chat.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
	RenameChat(ctx context.Context, chatID, title string) error
	ListMessages(ctx context.Context, chatID string) ([]chat.Message, error)
	AppendMessage(ctx context.Context, message chat.Message) error
	TouchChat(ctx context.Context, chatID string, at time.Time) error
}
