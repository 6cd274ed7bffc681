// Package app assembles the service from its parts: storage, object store,
// vector index, AI providers, queue and the HTTP server.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unboundlabs/unbound/internal/config"
	"github.com/unboundlabs/unbound/internal/core"
	db "github.com/unboundlabs/unbound/internal/core/database"
	"github.com/unboundlabs/unbound/internal/core/llm"
	objectclient "github.com/unboundlabs/unbound/internal/core/object-client"
	"github.com/unboundlabs/unbound/internal/core/rag"
	"github.com/unboundlabs/unbound/internal/core/vectorindex"
	"github.com/unboundlabs/unbound/internal/queue"
)

// App holds the API process dependencies.
type App struct {
	Books       core.BookStore
	IndexClient *vectorindex.PgxIndexClient
	Publisher   *queue.Publisher
	Server      *Server
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	books, err := db.NewBookStore(appCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init book store: %w", err)
	}
	log.Info("database initialized")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, log)
	if err != nil {
		_ = books.Close()
		return nil, err
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		_ = books.Close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		_ = embedder.Close()
		_ = books.Close()
		return nil, fmt.Errorf("init llm: %w", err)
	}

	indexClient, err := vectorindex.NewPgxIndexClient(appCtx, cfg.DatabaseURL, cfg.IndexMetric)
	if err != nil {
		_ = llmProvider.Close()
		_ = embedder.Close()
		_ = books.Close()
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	// from here on a failure must release both pools and the AI clients
	closeAll := func() {
		indexClient.Close()
		_ = llmProvider.Close()
		_ = embedder.Close()
		_ = books.Close()
	}

	index := vectorindex.NewGateway(indexClient, embedder, vectorindex.Config{
		Index:     cfg.IndexName,
		Dim:       cfg.EmbedDim,
		Metric:    cfg.IndexMetric,
		BatchSize: cfg.UpsertBatchSize,
		Retry:     vectorindex.RetryPolicy{Attempts: 2, Backoff: cfg.UpsertRetryBackoff},
	}, log)

	if err := index.EnsureIndex(appCtx, cfg.IndexName, cfg.EmbedDim, cfg.IndexMetric); err != nil {
		closeAll()
		return nil, err
	}

	engine := rag.NewEngine(index, llmProvider, cfg.TopK, log)

	publisher, err := queue.NewPublisher(cfg.NatsURL, log)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init queue publisher: %w", err)
	}

	server := NewServer(cfg, books, objClient, publisher, engine, log)

	return &App{
		Books:       books,
		IndexClient: indexClient,
		Publisher:   publisher,
		Server:      server,
	}, nil
}

func (a *App) Close() {
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.IndexClient != nil {
		a.IndexClient.Close()
	}
	if a.Books != nil {
		_ = a.Books.Close()
	}
}
