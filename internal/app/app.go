package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/readstack-hq/readstack/internal/config"
	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/core/chunker"
	db "github.com/readstack-hq/readstack/internal/core/database"
	"github.com/readstack-hq/readstack/internal/core/extract"
	"github.com/readstack-hq/readstack/internal/core/ingest"
	"github.com/readstack-hq/readstack/internal/core/llm"
	"github.com/readstack-hq/readstack/internal/core/objectstore"
	"github.com/readstack-hq/readstack/internal/core/retrieve"
	"github.com/readstack-hq/readstack/internal/pkg/logger"
	"github.com/readstack-hq/readstack/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Ingestor     *ingest.Ingestor
	Server       *Server
	Log          *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	log := logger.New(cfg.LogFilePath, cfg.IsProd)

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized and ready")

	objClient, err := objectstore.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("object client initialized and ready")

	// Embeddings are optional. Without an API key the pipeline still
	// ingests and serves keyword retrieval, just without vectors.
	var embedder core.EmbeddingProvider
	if cfg.AIAPIKey != "" {
		gem, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
		}
		embedder = gem
		log.Info("embedding provider initialized", zap.String("model", cfg.EmbedModel))
	} else {
		log.Warn("no AI API key configured; running without embeddings")
	}

	extractor := extract.New()
	splitter := chunker.New(cfg.ChunkSize)

	processor := ingest.NewProcessor(dbClient, extractor, splitter, embedder, log)
	ingestor := ingest.NewIngestor(dbClient, objClient, processor, log)
	ingestor.Start(ctx, cfg.IngestWorkers)

	retriever := retrieve.New(dbClient, embedder)
	bookSvc := services.NewBookService(dbClient, objClient, cfg.BucketName)

	server := NewServer(cfg, bookSvc, objClient, ingestor, processor, retriever, log)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Ingestor:     ingestor,
		Server:       server,
		Log:          log,
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
	if a.Log != nil {
		_ = a.Log.Sync()
	}
}
