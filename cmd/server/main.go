package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lumora-ai/lumora/config"
	"github.com/lumora-ai/lumora/db"
	"github.com/lumora-ai/lumora/handlers"
	"github.com/lumora-ai/lumora/internal/api"
	"github.com/lumora-ai/lumora/internal/auth"
	"github.com/lumora-ai/lumora/internal/extract"
	"github.com/lumora-ai/lumora/internal/store"
	"github.com/lumora-ai/lumora/internal/utils"
	"github.com/lumora-ai/lumora/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger := utils.MustNewLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx := context.Background()

	sessions, err := newConversationStore(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("conversation store: %v", err)
	}

	authService, err := auth.NewService(cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		sugar.Fatalf("failed to initialise auth service: %v", err)
	}

	router := setupRouter(cfg, authService, sessions, sugar)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infof("server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("server crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("graceful shutdown failed: %v", err)
	}

	sugar.Info("server stopped cleanly")
}

// newConversationStore selects the session backend: redis when configured,
// otherwise the process-local map.
func newConversationStore(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (store.ConversationStore, error) {
	if cfg.RedisURL == "" {
		sugar.Info("sessions: using in-memory store")
		return store.NewMemoryStore(), nil
	}

	client, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	sugar.Infof("sessions: using redis store (ttl=%s)", cfg.Limits.SessionTTL)
	return store.NewRedisStore(client, cfg.Limits.SessionTTL), nil
}

func setupRouter(cfg *config.Config, authService *auth.Service, sessions store.ConversationStore, sugar *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = cfg.Limits.MaxUploadBytes

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	chatService := services.NewChatService(cfg, nil, sugar)
	summaryService := services.NewSummaryService(cfg, nil, sugar)
	extractor := extract.New(cfg.Limits.ExtractRuneLimit)

	chatHandler := handlers.NewChatHandler(cfg, chatService, sessions, sugar)
	documentHandler := handlers.NewDocumentHandler(cfg, extractor, chatHandler, sugar)
	summaryHandler := handlers.NewSummaryHandler(cfg, summaryService, extractor, sugar)
	sessionHandler := handlers.NewSessionHandler(sessions, sugar)

	api.NewHandler(authService, cfg.AuthRequired, chatHandler, documentHandler, summaryHandler, sessionHandler).RegisterRoutes(router)

	return router
}
