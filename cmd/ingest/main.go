package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/internal/chunker"
	"github.com/regdoc-agent/backend/internal/embedding"
	"github.com/regdoc-agent/backend/internal/ingestion"
	"github.com/regdoc-agent/backend/internal/storage/sqlite"
	"github.com/regdoc-agent/backend/internal/vector/milvus"
	"github.com/regdoc-agent/backend/pkg/config"
	appLogger "github.com/regdoc-agent/backend/pkg/logger"
)

func main() {
	rebuild := flag.Bool("rebuild", false, "drop and recreate the collection before ingesting")
	dirs := flag.String("dirs", "", "comma-separated corpus directories (overrides config)")
	sample := flag.String("sample", "", "run a sample query after ingestion")
	flag.Parse()

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

	corpusDirs := cfg.Corpus.Dirs
	if *dirs != "" {
		corpusDirs = strings.Split(*dirs, ",")
	}

	appLogger.Info("Starting ingestion",
		zap.Strings("dirs", corpusDirs),
		zap.Bool("rebuild", *rebuild),
	)

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

	ctx := context.Background()

	if err := embedder.Ping(ctx); err != nil {
		appLogger.Fatal("Embedding backend unavailable", zap.Error(err))
	}

	store, err := milvus.NewStore(cfg.Milvus.Endpoint, cfg.Milvus.CollectionName, embedder)
	if err != nil {
		appLogger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer store.Close()

	ch := chunker.New(
		chunker.WithChunkSize(cfg.Chunking.ChunkSize),
		chunker.WithChunkOverlap(cfg.Chunking.ChunkOverlap),
		chunker.WithMinChunkSize(cfg.Chunking.MinChunkSize),
	)

	pipeline := ingestion.NewPipeline(sqliteClient, store, ch, corpusDirs)

	if *rebuild {
		if err := pipeline.ClearCollection(ctx); err != nil {
			appLogger.Fatal("Failed to clear collection", zap.Error(err))
		}
	}

	stats, err := pipeline.Run(ctx)
	if err != nil {
		appLogger.Fatal("Ingestion failed", zap.Error(err))
	}

	for _, msg := range stats.Errors {
		appLogger.Warn("Ingestion error", zap.String("error", msg))
	}

	appLogger.Info("Ingestion complete",
		zap.Int("documents_processed", stats.DocumentsProcessed),
		zap.Int("documents_skipped", stats.DocumentsSkipped),
		zap.Int("chunks_created", stats.ChunksCreated),
		zap.Int("chunks_stored", stats.ChunksStored),
		zap.Int("errors", len(stats.Errors)),
	)

	if *sample != "" {
		hits, err := pipeline.QuerySample(ctx, *sample, 3)
		if err != nil {
			appLogger.Fatal("Sample query failed", zap.Error(err))
		}
		for i, hit := range hits {
			appLogger.Info("Sample result",
				zap.Int("rank", i+1),
				zap.String("chunk_id", hit.ChunkID),
				zap.String("section", hit.Section),
				zap.Float32("distance", hit.Distance),
			)
		}
	}
}
