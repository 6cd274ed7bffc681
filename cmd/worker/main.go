package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unboundlabs/unbound/internal/config"
	"github.com/unboundlabs/unbound/internal/core/chunker"
	"github.com/unboundlabs/unbound/internal/core/converter"
	db "github.com/unboundlabs/unbound/internal/core/database"
	"github.com/unboundlabs/unbound/internal/core/llm"
	"github.com/unboundlabs/unbound/internal/core/vectorindex"
	"github.com/unboundlabs/unbound/internal/models"
	"github.com/unboundlabs/unbound/internal/pkg/logger"
	"github.com/unboundlabs/unbound/internal/queue"
	"github.com/unboundlabs/unbound/internal/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()
	zl := logger.New(cfg.LogFile, cfg.AppEnv == "production")
	defer func() { _ = zl.Sync() }()

	startCtx, startCancel := context.WithTimeout(ctx, 5*time.Minute)
	defer startCancel()

	books, err := db.NewBookStore(startCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("init book store: %v", err)
	}
	defer books.Close()

	embedder, err := llm.NewGeminiEmbedder(startCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		log.Fatalf("init embedder: %v", err)
	}

	indexClient, err := vectorindex.NewPgxIndexClient(startCtx, cfg.DatabaseURL, cfg.IndexMetric)
	if err != nil {
		log.Fatalf("init vector index: %v", err)
	}
	defer indexClient.Close()

	index := vectorindex.NewGateway(indexClient, embedder, vectorindex.Config{
		Index:     cfg.IndexName,
		Dim:       cfg.EmbedDim,
		Metric:    cfg.IndexMetric,
		BatchSize: cfg.UpsertBatchSize,
		Retry:     vectorindex.RetryPolicy{Attempts: 2, Backoff: cfg.UpsertRetryBackoff},
	}, zl)

	if err := index.EnsureIndex(startCtx, cfg.IndexName, cfg.EmbedDim, cfg.IndexMetric); err != nil {
		log.Fatalf("ensure index: %v", err)
	}

	splitter := chunker.NewWithConfig(chunker.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})

	conv := converter.NewDocconvConverter(zl)
	w := worker.NewIngestWorker(books, conv, splitter, index, zl)

	consumer, err := queue.NewConsumer(cfg.NatsURL, zl)
	if err != nil {
		log.Fatalf("init queue consumer: %v", err)
	}
	defer consumer.Close()

	handler := func(jobCtx context.Context, job models.IngestJob) error {
		_, err := w.Handle(jobCtx, job)
		return err
	}
	if err := consumer.Consume(ctx, cfg.JobAckWait, handler); err != nil {
		log.Fatalf("start consumer: %v", err)
	}

	zl.Info("ingestion worker running")
	<-ctx.Done()
	zl.Info("shutting down worker")
}
