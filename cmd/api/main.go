package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/internal/api/handlers"
	cache "github.com/regdoc-agent/backend/internal/cache/redis"
	"github.com/regdoc-agent/backend/internal/embedding"
	"github.com/regdoc-agent/backend/internal/metrics"
	"github.com/regdoc-agent/backend/internal/retriever"
	"github.com/regdoc-agent/backend/internal/storage/sqlite"
	"github.com/regdoc-agent/backend/internal/vector/milvus"
	"github.com/regdoc-agent/backend/pkg/config"
	appLogger "github.com/regdoc-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting retrieval API server")
	metrics.Register()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	embedder, err := embedding.NewOpenAIEmbedder(cfg.Embedding)
	if err != nil {
		appLogger.Fatal("Failed to create embedder", zap.Error(err))
	}
	if err := embedder.Ping(context.Background()); err != nil {
		appLogger.Fatal("Embedding backend unavailable", zap.Error(err))
	}

	store, err := milvus.NewStore(cfg.Milvus.Endpoint, cfg.Milvus.CollectionName, embedder)
	if err != nil {
		appLogger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer store.Close()

	if err := store.EnsureCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	var cacheClient *cache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = cache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without response cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	ret := retriever.New(store, cfg.Retrieval)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	retrieveHandler := handlers.NewRetrieveHandler(ret, cacheClient, cfg.Retrieval.MaxContextTokens)
	statsHandler := handlers.NewStatsHandler(store, sqliteClient)

	api := app.Group("/api/v1")
	api.Post("/retrieve", retrieveHandler.HandleRetrieve)
	api.Post("/context", retrieveHandler.HandleContext)
	api.Get("/sources", statsHandler.HandleSources)
	api.Get("/stats", statsHandler.HandleStats)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
