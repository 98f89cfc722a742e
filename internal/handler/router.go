// Package handler wires HTTP routes to the record store and the realtime
// message bridge.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cognify-ai/cognify/internal/auth"
	chathandler "github.com/cognify-ai/cognify/internal/handler/chat"
	"github.com/cognify-ai/cognify/internal/handler/ws"
	"github.com/cognify-ai/cognify/internal/middleware"
	"github.com/cognify-ai/cognify/internal/service/ai"
	"github.com/cognify-ai/cognify/internal/storage"
)

// NewRouter assembles the API surface: REST chat CRUD plus the websocket
// endpoint, both behind the same authentication middleware.
func NewRouter(store storage.Store, generator ai.Generator, verifier auth.Verifier) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	chatHandler := chathandler.New(store)
	wsHandler := ws.New(store, generator)

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.Middleware(verifier))
		chatHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
