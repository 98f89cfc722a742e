package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cognify-ai/cognify/internal/model/chat"
)

// HTTPStore is the client-side view of the record store, speaking the
// server's REST API. It implements the subset of Store the conversation
// controller consumes; writes of individual turns happen server-side.
type HTTPStore struct {
	base   string
	token  string
	client *http.Client
}

// NewHTTPStore builds a store client for the given API base URL.
func NewHTTPStore(base, token string) *HTTPStore {
	return &HTTPStore{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrChatNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ListChats fetches the user's chats. The server derives the user from the
// credential, so userID is unused here.
func (s *HTTPStore) ListChats(ctx context.Context, _ string) ([]chat.Chat, error) {
	var out struct {
		Chats []chat.Chat `json:"chats"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/chat", nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// CreateChat creates a chat.
func (s *HTTPStore) CreateChat(ctx context.Context, _ string, title string) (chat.Chat, error) {
	var created chat.Chat
	payload := map[string]string{"title": title}
	if err := s.do(ctx, http.MethodPost, "/api/chat", payload, &created); err != nil {
		return chat.Chat{}, err
	}
	return created, nil
}

// DeleteChat deletes a chat.
func (s *HTTPStore) DeleteChat(ctx context.Context, chatID string) error {
	return s.do(ctx, http.MethodDelete, "/api/chat/"+chatID, nil, nil)
}

// RenameChat updates a chat title.
func (s *HTTPStore) RenameChat(ctx context.Context, chatID, title string) error {
	payload := map[string]string{"title": title}
	return s.do(ctx, http.MethodPut, "/api/chat/"+chatID+"/title", payload, nil)
}

// ListMessages fetches a chat's history.
func (s *HTTPStore) ListMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	var out struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/chat/"+chatID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}
