package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/cognify-ai/cognify/internal/model/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	title         TEXT NOT NULL,
	last_activity TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, last_activity DESC);

CREATE TABLE IF NOT EXISTS messages (
	id             TEXT NOT NULL,
	chat_id        TEXT NOT NULL,
	role           TEXT NOT NULL,
	content        TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT '',
	can_regenerate INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL,
	FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at);
`

// SQLiteStore persists chats and messages in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the store at path. The
// parent directory is created when missing.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer; keep the pool at one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListChats returns the user's chats, most recently active first.
func (s *SQLiteStore) ListChats(ctx context.Context, userID string) ([]chat.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, last_activity FROM chats WHERE user_id = ? ORDER BY last_activity DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []chat.Chat
	for rows.Next() {
		var c chat.Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.LastActivity); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// CreateChat inserts a chat with a server-assigned id.
func (s *SQLiteStore) CreateChat(ctx context.Context, userID, title string) (chat.Chat, error) {
	if title == "" {
		title = chat.DefaultTitle
	}
	c := chat.Chat{
		ID:           uuid.NewString(),
		Title:        title,
		LastActivity: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, last_activity) VALUES (?, ?, ?, ?)`,
		c.ID, userID, c.Title, c.LastActivity)
	if err != nil {
		return chat.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return c, nil
}

// DeleteChat removes a chat and, via the foreign key, its messages.
func (s *SQLiteStore) DeleteChat(ctx context.Context, chatID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// RenameChat updates a chat title.
func (s *SQLiteStore) RenameChat(ctx context.Context, chatID, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chats SET title = ? WHERE id = ?`, title, chatID)
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// ListMessages returns a chat's messages in temporal order.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, status, can_regenerate, created_at
		 FROM messages WHERE chat_id = ? ORDER BY created_at, rowid`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var m chat.Message
		var canRegen int
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.Status, &canRegen, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CanRegenerate = canRegen != 0
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendMessage persists one turn and advances the chat's last activity.
func (s *SQLiteStore) AppendMessage(ctx context.Context, m chat.Message) error {
	if m.ChatID == "" {
		return ErrChatNotFound
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	canRegen := 0
	if m.CanRegenerate {
		canRegen = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, content, status, can_regenerate, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.Role, m.Content, m.Status, canRegen, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return s.TouchChat(ctx, m.ChatID, m.CreatedAt)
}

// TouchChat advances last_activity.
func (s *SQLiteStore) TouchChat(ctx context.Context, chatID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chats SET last_activity = ? WHERE id = ?`, at, chatID)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}
