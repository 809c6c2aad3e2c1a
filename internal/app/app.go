package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"diploma-rag/internal/config"
	"diploma-rag/internal/core"
	db "diploma-rag/internal/core/database"
	"diploma-rag/internal/core/extract"
	"diploma-rag/internal/core/ingestion"
	"diploma-rag/internal/core/llm"
	objectclient "diploma-rag/internal/core/object-client"
	"diploma-rag/internal/services"
)

// App owns the process-wide client handles. Each is constructed once here
// and passed by reference to every component that needs it; startup fails
// outright if any external service cannot be reached.
type App struct {
	DBClient *db.DatabaseClient
	Embedder *llm.GeminiEmbedder
	LLM      *llm.GeminiLLM
	Ingestor *ingestion.Ingestor
	Server   *Server

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the database: %w", err)
	}
	log.Info().Msg("database initialized and ready")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
	}

	app := &App{
		DBClient: dbClient,
		Embedder: embedder,
		LLM:      llmProvider,
	}
	app.closers = append(app.closers, dbClient.Close, embedder.Close, llmProvider.Close)

	var objClient core.ObjectClient
	if cfg.ArchiveEnabled() {
		objClient, err = objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize object storage: %w", err)
		}
	} else {
		log.Info().Msg("object storage not configured; raw uploads are not archived")
	}

	extractor, err := app.buildExtractor(appCtx, cfg)
	if err != nil {
		return nil, err
	}

	ingCfg := &ingestion.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		EmbedBatch:   cfg.EmbedBatch,
		UpsertBatch:  cfg.UpsertBatch,
		UpsertPause:  cfg.UpsertPause,
		MaxFileBytes: cfg.MaxFileBytes,
	}
	app.Ingestor = ingestion.NewIngestor(dbClient, dbClient, extractor, embedder, objClient, cfg.BucketName, cfg.Namespace, ingCfg)

	retriever := services.NewRetrievalService(embedder, dbClient, cfg.Namespace)
	chat := services.NewChatService(llmProvider, retriever, services.ChatMode(cfg.ChatMode), cfg.TopK)

	app.Server = NewServer(cfg, dbClient, app.Ingestor, chat)
	return app, nil
}

// buildExtractor picks the extraction strategy: local docconv parsing, or
// Gemini Files-API extraction when EXTRACT_MODE=llm.
func (a *App) buildExtractor(ctx context.Context, cfg *config.Config) (core.Extractor, error) {
	if cfg.ExtractMode == "llm" {
		ex, err := llm.NewGeminiExtractor(ctx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the llm extractor: %w", err)
		}
		a.closers = append(a.closers, ex.Close)
		return ex, nil
	}
	useReadability := false
	return extract.NewDocconvExtractor(useReadability), nil
}

func (a *App) Close() {
	for _, close := range a.closers {
		_ = close()
	}
}
