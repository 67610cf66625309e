package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"saga-server/internal/config"
	"saga-server/internal/delivery/websocket"
	"saga-server/internal/handler"
	"saga-server/internal/illustration"
	"saga-server/internal/narration"
	"saga-server/internal/reconciler"
	"saga-server/internal/service"
	"saga-server/internal/store"
	"saga-server/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	sessionStore, err := setupStore(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize session store", zap.Error(err))
	}
	zapLogger.Info("Session store ready", zap.String("backend", cfg.StoreBackend))

	narrator, err := narration.New(narration.Config{
		APIKey:     cfg.AIAPIKey,
		ModelName:  cfg.AIModel,
		BaseURL:    cfg.AIBaseURL,
		Timeout:    cfg.AITimeout,
		MaxRetries: cfg.AIMaxRetries,
		PromptsDir: cfg.PromptsDir,
	})
	if err != nil {
		zapLogger.Fatal("Failed to create narration client", zap.Error(err))
	}

	var illustrator illustration.Generator
	if cfg.ImageServerURL != "" {
		illustrator, err = illustration.NewClient(illustration.Config{
			BaseURL:           cfg.ImageServerURL,
			Timeout:           cfg.ImageTimeout,
			Ratio:             cfg.ImageRatio,
			PromptStyleSuffix: cfg.ImageStyleSuffix,
		}, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create illustration client", zap.Error(err))
		}
	} else {
		zapLogger.Warn("IMAGE_SERVER_URL not set, illustrations disabled")
	}

	rec := reconciler.New(sessionStore, narrator, illustrator, zapLogger)
	sessionService := service.NewSessionService(sessionStore, cfg.StuckAfter, cfg.DefaultMaxHP, zapLogger)
	hub := websocket.NewHub(sessionStore, zapLogger)

	router := handler.NewRouter(cfg, sessionService, hub, rec, zapLogger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("Server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutdown signal received, draining...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Graceful shutdown failed", zap.Error(err))
	}
	zapLogger.Info("Server stopped")
}

// setupStore picks the session store backend.
func setupStore(cfg *config.Config, zapLogger *zap.Logger) (store.SessionStore, error) {
	if cfg.StoreBackend == "memory" {
		return store.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return store.NewRedisStore(client, cfg.SessionTTL, zapLogger)
}
