// Package vectorindex owns the connection to the vector database: it ensures
// the shared index exists and performs batched, retried insertion of chunk
// embeddings tagged with a book identifier, plus the scoped read path.
package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unboundlabs/unbound/internal/core"
	"github.com/unboundlabs/unbound/internal/models"
)

// Record is one indexed vector: a chunk embedding plus its full metadata.
// Every record carries the book_id metadata so retrieval can be scoped.
type Record struct {
	ID        string
	BookID    string
	Text      string
	Metadata  map[string]string
	Embedding []float32
}

// IndexClient is the narrow seam to the actual vector database engine.
type IndexClient interface {
	EnsureSchema(ctx context.Context, index string, dim int, metric string) error
	InsertBatch(ctx context.Context, index string, records []Record) error
	Query(ctx context.Context, index string, bookID string, embedding []float32, k int) ([]Record, error)
}

// RetryPolicy bounds per-batch retries on the write path. Attempts counts the
// initial try, so {Attempts: 2, Backoff: 5s} means one retry after 5s.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 2, Backoff: 5 * time.Second}

type Config struct {
	Index     string
	Dim       int
	Metric    string
	BatchSize int
	Retry     RetryPolicy
}

type Gateway struct {
	client   IndexClient
	embedder core.EmbeddingProvider
	cfg      Config
	log      *zap.Logger
}

var _ core.VectorIndex = (*Gateway)(nil)

func NewGateway(client IndexClient, embedder core.EmbeddingProvider, cfg Config, log *zap.Logger) *Gateway {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Metric == "" {
		cfg.Metric = "cosine"
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &Gateway{client: client, embedder: embedder, cfg: cfg, log: log}
}

// EnsureIndex creates the named index with the given dimensionality if it is
// absent, else no-ops. Safe under concurrent callers racing to create the same
// index; the client tolerates the duplicate-object errors such a race produces.
func (g *Gateway) EnsureIndex(ctx context.Context, name string, dim int, metric string) error {
	if err := g.client.EnsureSchema(ctx, name, dim, metric); err != nil {
		return fmt.Errorf("ensure index %q: %w", name, err)
	}
	return nil
}

// Upsert stamps every chunk's metadata with the book identifier, then embeds
// and submits fixed-size batches sequentially. A batch that fails is retried
// per the policy; if the last attempt also fails the error propagates and
// earlier batches remain indexed. Callers must treat that as a partially
// indexed book, not a success.
func (g *Gateway) Upsert(ctx context.Context, chunks []models.Chunk, bookID string) error {
	if len(chunks) == 0 {
		return nil
	}

	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]string, 1)
		}
		chunks[i].Metadata["book_id"] = bookID
	}

	total := len(chunks)
	g.log.Info("starting vector upload",
		zap.String("book_id", bookID), zap.Int("chunks", total))

	for start := 0; start < total; start += g.cfg.BatchSize {
		end := start + g.cfg.BatchSize
		if end > total {
			end = total
		}
		if err := g.upsertBatch(ctx, chunks[start:end], bookID); err != nil {
			return fmt.Errorf("upsert batch %d..%d for book %s: %w", start, end, bookID, err)
		}
		g.log.Info("uploaded batch",
			zap.String("book_id", bookID), zap.Int("from", start), zap.Int("to", end))
	}
	return nil
}

func (g *Gateway) upsertBatch(ctx context.Context, batch []models.Chunk, bookID string) error {
	attempt := func() error {
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}
		vecs, err := g.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(batch))
		}

		records := make([]Record, len(batch))
		for i := range batch {
			records[i] = Record{
				ID:        uuid.NewString(),
				BookID:    bookID,
				Text:      batch[i].Text,
				Metadata:  batch[i].Metadata,
				Embedding: vecs[i],
			}
		}
		return g.client.InsertBatch(ctx, g.cfg.Index, records)
	}

	var err error
	for try := 1; try <= g.cfg.Retry.Attempts; try++ {
		if try > 1 {
			g.log.Warn("batch failed, backing off before retry",
				zap.String("book_id", bookID), zap.Error(err),
				zap.Duration("backoff", g.cfg.Retry.Backoff))
			select {
			case <-time.After(g.cfg.Retry.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = attempt(); err == nil {
			return nil
		}
	}
	return err
}

// Search embeds the query and returns the top-k nearest chunks, filtered
// server-side to records whose book_id equals the argument. Chunks from other
// books are never returned, whatever their unfiltered score.
func (g *Gateway) Search(ctx context.Context, bookID string, query string, k int) ([]models.Chunk, error) {
	if k <= 0 {
		k = 5
	}
	vecs, err := g.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}

	records, err := g.client.Query(ctx, g.cfg.Index, bookID, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("search book %s: %w", bookID, err)
	}

	chunks := make([]models.Chunk, 0, len(records))
	for _, r := range records {
		chunks = append(chunks, models.Chunk{Text: r.Text, Metadata: r.Metadata})
	}
	return chunks, nil
}
