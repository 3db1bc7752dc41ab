package main

import (
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sparkai/internal/config"
	"sparkai/internal/ratelimit"
	"sparkai/internal/server"
	"sparkai/internal/util"
	"sparkai/pkg/ai"
	"sparkai/pkg/auth"
	"sparkai/pkg/events"
	"sparkai/pkg/rag"
	"sparkai/pkg/search"
	"sparkai/pkg/storage"
	"sparkai/pkg/store"
	"sparkai/pkg/workspace"
)

const dashscopeCompatibleBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	gormStore, err := store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(cfg.EmbeddingDim))
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	sessions := store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword)
	defer sessions.Close()
	history := store.NewRedisHistoryStore(cfg.RedisAddr, cfg.RedisPassword)
	defer history.Close()

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	if err != nil {
		log.Fatalf("failed to init token manager: %v", err)
	}

	var embedder ai.Embedder
	if strings.TrimSpace(cfg.DashScopeAPIKey) != "" {
		embedder = ai.NewDashScopeEmbedder(
			ai.NewDashScopeClient(cfg.DashScopeBaseURL, cfg.DashScopeAPIKey),
			cfg.EmbeddingModel,
		)
	} else {
		logger.Warn("dashscope api key not set; document pipeline disabled")
	}

	generatorBaseURL := dashscopeCompatibleBaseURL
	if strings.TrimSpace(cfg.DashScopeBaseURL) != "" {
		generatorBaseURL = strings.TrimRight(cfg.DashScopeBaseURL, "/") + "/compatible-mode/v1"
	}
	generator := ai.NewOpenAICompatGenerator(generatorBaseURL, cfg.DashScopeAPIKey, cfg.GenerationModel)

	var objects rag.ObjectStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Warn("minio unavailable; originals will not be retained", "error", err)
		} else {
			objects = minioStore
		}
	}

	var publisher rag.EventPublisher
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			logger.Warn("amqp unavailable; document events disabled", "error", err)
		} else {
			defer amqpPublisher.Close()
			publisher = amqpPublisher
		}
	}

	ragSvc := rag.NewService(gormStore, embedder, objects, publisher, rag.ServiceConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		TopK:         cfg.TopK,
		TempDir:      cfg.TempDir,
	})
	searcher := search.NewTavilyClient("", cfg.TavilyAPIKey)
	wsSvc := workspace.NewService(sessions, history, ragSvc, searcher, gormStore, generator)

	httpServer := server.New(server.Config{
		RAG:            ragSvc,
		Workspace:      wsSvc,
		History:        history,
		Users:          gormStore,
		Prompts:        gormStore,
		Tokens:         tokens,
		SignupLimiter:  newLimiter(cfg, "signup", cfg.SignupRateLimitPerMinute, logger),
		LoginLimiter:   newLimiter(cfg, "login", cfg.LoginRateLimitPerMinute, logger),
		UploadLimiter:  newLimiter(cfg, "upload", cfg.UploadRateLimitPerMinute, logger),
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("spark server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newLimiter(cfg config.FileConfig, name string, perMinute int, logger *slog.Logger) *ratelimit.FixedWindowLimiter {
	if perMinute <= 0 {
		return nil
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "spark:ratelimit:"+name, perMinute, time.Minute)
	if err != nil {
		logger.Warn("rate limiter disabled", "name", name, "error", err)
		return nil
	}
	return limiter
}
