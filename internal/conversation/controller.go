// Package conversation sequences user intent across the transcript store,
// the chat directory, the response correlator and the realtime channel. It
// is the only place where those components are composed.
package conversation

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/cognify-ai/cognify/internal/channel"
	"github.com/cognify-ai/cognify/internal/correlator"
	"github.com/cognify-ai/cognify/internal/directory"
	"github.com/cognify-ai/cognify/internal/model/chat"
	"github.com/cognify-ai/cognify/internal/notice"
	"github.com/cognify-ai/cognify/internal/transcript"
)

// titleMaxLen caps a derived chat title before the ellipsis is added.
const titleMaxLen = 30

var (
	// ErrEmptyContent rejects a send whose trimmed content is empty.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrNoChannel rejects a send while the realtime channel is down.
	ErrNoChannel = errors.New("realtime channel unavailable")
)

// Channel is the slice of the realtime channel the controller drives. Only
// the controller may touch the channel's emit/close operations.
type Channel interface {
	Connected() bool
	Emit(ev channel.Envelope) error
	Close()
}

// Storage is the record-store collaborator as seen from the client: chat
// CRUD plus history fetch. Every call may fail with a transport or storage
// error; the controller degrades those to user notices.
type Storage interface {
	ListChats(ctx context.Context, userID string) ([]chat.Chat, error)
	CreateChat(ctx context.Context, userID, title string) (chat.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
	RenameChat(ctx context.Context, chatID, title string) error
	ListMessages(ctx context.Context, chatID string) ([]chat.Message, error)
}

// Controller orchestrates one user's conversations.
type Controller struct {
	transcripts *transcript.Store
	chats       *directory.Directory
	watchdog    *correlator.Correlator
	ch          Channel
	store       Storage
	notices     notice.Sink
	ids         *chat.IDClock
	now         func() time.Time
	userID      string
}

// Config carries the controller's collaborators. Channel and Store are
// constructor-injected so tests can substitute fakes.
type Config struct {
	Transcripts *transcript.Store
	Chats       *directory.Directory
	Watchdog    *correlator.Correlator
	Channel     Channel
	Store       Storage
	Notices     notice.Sink
	IDs         *chat.IDClock
	Now         func() time.Time
	UserID      string
}

// New assembles a controller and binds the regeneration resend path.
func New(cfg Config) *Controller {
	c := &Controller{
		transcripts: cfg.Transcripts,
		chats:       cfg.Chats,
		watchdog:    cfg.Watchdog,
		ch:          cfg.Channel,
		store:       cfg.Store,
		notices:     cfg.Notices,
		ids:         cfg.IDs,
		now:         cfg.Now,
		userID:      cfg.UserID,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.ids == nil {
		c.ids = chat.NewIDClock()
	}
	c.watchdog.BindResend(c.Send)
	return c
}

// Send submits a user turn. The user message is appended optimistically
// before the network emit and is never rolled back: if the emit fails, the
// watchdog eventually surfaces a regenerate-capable error instead.
func (c *Controller) Send(chatID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" || chatID == "" {
		return ErrEmptyContent
	}
	if !c.ch.Connected() {
		c.notices.Notify(notice.Error, "Connection lost. Please reconnect and try again.")
		return ErrNoChannel
	}

	// A new send supersedes any pending exchange for this chat.
	c.watchdog.Disarm(chatID)

	msg := chat.Message{
		ID:        c.ids.Next(),
		ChatID:    chatID,
		Content:   content,
		Role:      chat.RoleUser,
		CreatedAt: c.now(),
	}
	c.transcripts.Append(chatID, msg)
	c.chats.Touch(chatID, msg.CreatedAt)

	c.watchdog.Arm(chatID, msg)

	if err := c.ch.Emit(channel.Envelope{
		Event:   channel.EventAIMessage,
		Chat:    chatID,
		Content: content,
	}); err != nil {
		// The optimistic message stays visible; the watchdog will fire
		// and offer regeneration.
		log.Printf("[conversation] emit failed for chat=%s: %v", chatID, err)
		c.notices.Notify(notice.Error, "Failed to send message.")
	}
	return nil
}

// HandleEvent dispatches inbound channel envelopes.
func (c *Controller) HandleEvent(ev channel.Envelope) {
	switch ev.Event {
	case channel.EventAIResponse:
		c.OnAIReply(ev.Chat, ev.Content)
	default:
		log.Printf("[conversation] ignoring event %q", ev.Event)
	}
}

// OnAIReply applies a completed AI turn. Replies are applied to their chat
// regardless of which chat is currently displayed, and regardless of which
// send produced them: a late reply to a superseded exchange still lands.
func (c *Controller) OnAIReply(chatID, content string) {
	if chatID == "" {
		return
	}

	c.watchdog.Disarm(chatID)
	c.transcripts.PurgeErrors(chatID)
	prior := c.transcripts.Len(chatID)

	reply := chat.Message{
		ID:        c.ids.Next(),
		ChatID:    chatID,
		Content:   content,
		Role:      chat.RoleModel,
		CreatedAt: c.now(),
	}
	c.transcripts.Append(chatID, reply)
	c.chats.Touch(chatID, reply.CreatedAt)

	c.deriveTitle(chatID, prior)
}

// deriveTitle renames a still-placeholder chat after its first exchange,
// using the first user message. Persistence is fire-and-forget: a storage
// failure is logged, never surfaced, and the local rename stands.
func (c *Controller) deriveTitle(chatID string, priorMessages int) {
	current, ok := c.chats.Get(chatID)
	if !ok || current.Title != chat.DefaultTitle || priorMessages > 1 {
		return
	}

	var title string
	for _, m := range c.transcripts.Messages(chatID) {
		if m.Role == chat.RoleUser {
			title = truncateTitle(m.Content)
			break
		}
	}
	if title == "" {
		return
	}

	c.chats.Rename(chatID, title)
	if err := c.store.RenameChat(context.Background(), chatID, title); err != nil {
		log.Printf("[conversation] failed to persist title for chat=%s: %v", chatID, err)
	}
}

func truncateTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleMaxLen {
		return content
	}
	return string(runes[:titleMaxLen]) + "..."
}

// Regenerate re-issues the last outbound message for the chat. With nothing
// to retry it degrades to a non-fatal notice.
func (c *Controller) Regenerate(chatID string) error {
	err := c.watchdog.Regenerate(chatID)
	if errors.Is(err, correlator.ErrNoCandidate) {
		c.notices.Notify(notice.Error, "No message to regenerate")
	}
	return err
}

// OnConnectivityError surfaces an unrecoverable channel failure so the user
// can re-authenticate instead of retrying silently.
func (c *Controller) OnConnectivityError(err error) {
	if errors.Is(err, channel.ErrAuthRejected) {
		c.notices.Notify(notice.Error, "Real-time connection failed. Please refresh and login again.")
		return
	}
	c.notices.Notify(notice.Error, "Real-time connection lost.")
}

// RefreshChats reloads the chat directory from storage.
func (c *Controller) RefreshChats(ctx context.Context) error {
	chats, err := c.store.ListChats(ctx, c.userID)
	if err != nil {
		c.notices.Notify(notice.Error, "Failed to load chats")
		return err
	}
	c.chats.Replace(chats)
	return nil
}

// NewChat creates a chat and makes it current.
func (c *Controller) NewChat(ctx context.Context) (chat.Chat, error) {
	created, err := c.store.CreateChat(ctx, c.userID, chat.DefaultTitle)
	if err != nil {
		c.notices.Notify(notice.Error, "Failed to create chat")
		return chat.Chat{}, err
	}
	c.chats.Add(created)
	c.chats.SetCurrent(created.ID)
	return created, nil
}

// OpenChat makes a chat current and loads its history.
func (c *Controller) OpenChat(ctx context.Context, chatID string) error {
	c.chats.SetCurrent(chatID)
	c.transcripts.SetLoading(chatID, true)

	messages, err := c.store.ListMessages(ctx, chatID)
	if err != nil {
		c.transcripts.SetLoading(chatID, false)
		c.notices.Notify(notice.Error, "Failed to load messages")
		return err
	}
	c.transcripts.Load(chatID, messages)
	return nil
}

// DeleteChat removes a chat everywhere.
func (c *Controller) DeleteChat(ctx context.Context, chatID string) error {
	if err := c.store.DeleteChat(ctx, chatID); err != nil {
		c.notices.Notify(notice.Error, "Failed to delete chat")
		return err
	}
	c.watchdog.Disarm(chatID)
	c.transcripts.Clear(chatID)
	c.chats.Remove(chatID)
	return nil
}

// RenameChat applies an explicit user rename.
func (c *Controller) RenameChat(ctx context.Context, chatID, title string) error {
	c.chats.Rename(chatID, title)
	if err := c.store.RenameChat(ctx, chatID, title); err != nil {
		c.notices.Notify(notice.Error, "Failed to rename chat")
		return err
	}
	return nil
}

// Close ends the session: every pending watchdog is cancelled before the
// channel is torn down, so no stray timer fires into a cleared store.
func (c *Controller) Close() {
	c.watchdog.DisarmAll()
	c.ch.Close()
}
