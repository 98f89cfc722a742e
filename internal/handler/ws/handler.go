// Package ws bridges the realtime channel to the AI service: inbound
// ai-message events become persisted turns and generated ai-response
// events, routed to every connection the owning user holds.
package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cognify-ai/cognify/internal/auth"
	"github.com/cognify-ai/cognify/internal/channel"
	"github.com/cognify-ai/cognify/internal/model/chat"
	"github.com/cognify-ai/cognify/internal/service/ai"
	"github.com/cognify-ai/cognify/internal/storage"
)

const (
	readTimeout    = 60 * time.Second
	writeTimeout   = 30 * time.Second
	pingInterval   = 30 * time.Second
	generateBudget = 90 * time.Second
)

// Handler upgrades authenticated connections and runs the message bridge.
type Handler struct {
	store     storage.Store
	generator ai.Generator
	hub       *Hub
	upgrader  websocket.Upgrader
}

// New creates the websocket handler. A nil generator leaves inbound
// messages unanswered; the client watchdog surfaces the failure.
func New(store storage.Store, generator ai.Generator) *Handler {
	return &Handler{
		store:     store,
		generator: generator,
		hub:       NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFromContext(r.Context())
	if userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] new connection for user=%s", userID)
	client := h.hub.Add(userID, conn)
	defer h.hub.Remove(userID, client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, client)

	for {
		var ev channel.Envelope
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error for user=%s: %v", userID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch ev.Event {
		case channel.EventAIMessage:
			if ev.Chat == "" || ev.Content == "" {
				continue
			}
			// Run the exchange off the read loop so other chats keep
			// flowing while the model thinks.
			go h.processMessage(userID, ev.Chat, ev.Content)
		default:
			log.Printf("[ws] ignoring event %q from user=%s", ev.Event, userID)
		}
	}
}

// processMessage persists the user turn, generates the reply, persists it
// and delivers it to all of the user's connections.
func (h *Handler) processMessage(userID, chatID, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), generateBudget)
	defer cancel()

	history, err := h.store.ListMessages(ctx, chatID)
	if err != nil {
		log.Printf("[ws] failed to load history for chat=%s: %v", chatID, err)
		history = nil
	}

	userMsg := chat.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Content:   content,
		Role:      chat.RoleUser,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.AppendMessage(ctx, userMsg); err != nil {
		log.Printf("[ws] failed to save user message for chat=%s: %v", chatID, err)
	}

	if h.generator == nil {
		log.Printf("[ws] AI unavailable, dropping message for chat=%s", chatID)
		return
	}

	reply, err := h.generator.Generate(ctx, history, content)
	if err != nil {
		log.Printf("[ws] generation failed for chat=%s: %v", chatID, err)
		return
	}

	modelMsg := chat.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Content:   reply,
		Role:      chat.RoleModel,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.AppendMessage(ctx, modelMsg); err != nil {
		log.Printf("[ws] failed to save model message for chat=%s: %v", chatID, err)
	}

	h.hub.Broadcast(userID, channel.Envelope{
		Event:   channel.EventAIResponse,
		Chat:    chatID,
		Content: reply,
	})
}

func (h *Handler) pingLoop(ctx context.Context, client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(writeTimeout); err != nil {
				return
			}
		}
	}
}
