package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cognify-ai/cognify/internal/auth"
	"github.com/cognify-ai/cognify/internal/storage"
	"github.com/cognify-ai/cognify/pkg/utils"
)

// Handler serves the chat record-store API consumed by clients.
type Handler struct {
	store storage.Store
}

// New creates the chat handler.
func New(store storage.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat", h.handleListChats)
	r.Post("/chat", h.handleCreateChat)
	r.Delete("/chat/{chatID}", h.handleDeleteChat)
	r.Put("/chat/{chatID}/title", h.handleRenameChat)
	r.Get("/chat/{chatID}/messages", h.handleListMessages)
}

func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFromContext(r.Context())

	chats, err := h.store.ListChats(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (h *Handler) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFromContext(r.Context())

	var payload struct {
		Title string `json:"title"`
	}
	if r.Body != nil {
		// An empty body is fine; the title defaults.
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	created, err := h.store.CreateChat(r.Context(), userID, payload.Title)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	if err := h.store.DeleteChat(r.Context(), chatID); err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			utils.RespondError(w, http.StatusNotFound, "chat not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete chat")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Title == "" {
		utils.RespondError(w, http.StatusBadRequest, "title is required")
		return
	}

	if err := h.store.RenameChat(r.Context(), chatID, payload.Title); err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			utils.RespondError(w, http.StatusNotFound, "chat not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to rename chat")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	messages, err := h.store.ListMessages(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			utils.RespondError(w, http.StatusNotFound, "chat not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
