package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cognify-ai/cognify/internal/auth"
	"github.com/cognify-ai/cognify/internal/config"
	"github.com/cognify-ai/cognify/internal/handler"
	"github.com/cognify-ai/cognify/internal/service/ai"
	"github.com/cognify-ai/cognify/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer closeStore()

	var generator ai.Generator
	if cfg.AI.Enabled() {
		svc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality")
		} else {
			generator = svc
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("AI credentials not configured, skipping AI initialization")
	}

	verifier := auth.NewStaticVerifier(cfg.Auth.Tokens)
	router := handler.NewRouter(store, generator, verifier)

	startServer(ctx, cfg.Server, router)
}

func openStore(cfg config.StorageConfig) (storage.Store, func(), error) {
	if cfg.Path == "" {
		log.Println("COGNIFY_DB_PATH not set, chats are kept in memory only")
		return storage.NewMemoryStore(), func() {}, nil
	}

	s, err := storage.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("storage open at %s", cfg.Path)
	return s, func() { s.Close() }, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Cognify server listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
