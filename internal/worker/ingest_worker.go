// Package worker drives one ingestion job per book through
// conversion -> structuring -> chunking -> indexing and persists the
// terminal status.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unboundlabs/unbound/internal/core"
	"github.com/unboundlabs/unbound/internal/core/chunker"
	"github.com/unboundlabs/unbound/internal/core/structure"
	"github.com/unboundlabs/unbound/internal/models"
)

// Outcome reports how a delivery ended. Skipped means a duplicate delivery or
// a lost claim; the queue should ack it without retrying.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
)

type IngestWorker struct {
	books     core.BookStore
	converter core.Converter
	splitter  *chunker.Splitter
	index     core.VectorIndex
	log       *zap.Logger
}

func NewIngestWorker(books core.BookStore, converter core.Converter, splitter *chunker.Splitter, index core.VectorIndex, log *zap.Logger) *IngestWorker {
	return &IngestWorker{
		books:     books,
		converter: converter,
		splitter:  splitter,
		index:     index,
		log:       log,
	}
}

// Handle processes one delivery of an ingestion job.
//
// The status moves queued -> processing -> completed|failed; completed and
// failed are terminal for the job. The flip to completed happens only after
// the full upsert returns, and a book already completed is skipped without
// re-converting or re-indexing, so at-least-once delivery cannot double-index.
// Errors are persisted as failed and returned so the queue's own retry policy
// governs redelivery.
func (w *IngestWorker) Handle(ctx context.Context, job models.IngestJob) (Outcome, error) {
	w.log.Info("received ingestion job",
		zap.String("book_id", job.BookID), zap.String("file_url", job.FileURL))

	book, err := w.books.GetBookByID(ctx, job.BookID)
	if err != nil {
		return "", fmt.Errorf("load book %s: %w", job.BookID, err)
	}
	if book == nil {
		return "", fmt.Errorf("book not found: %s", job.BookID)
	}

	if book.Status == models.StatusCompleted {
		w.log.Warn("book already completed, skipping duplicate job",
			zap.String("book_id", job.BookID))
		return OutcomeSkipped, nil
	}

	claimed, err := w.books.ClaimForProcessing(ctx, job.BookID)
	if err != nil {
		return "", fmt.Errorf("claim book %s: %w", job.BookID, err)
	}
	if !claimed {
		w.log.Warn("book claimed by another worker, skipping",
			zap.String("book_id", job.BookID))
		return OutcomeSkipped, nil
	}

	text, err := w.converter.Convert(ctx, job.FileURL)
	if err != nil {
		return "", w.fail(ctx, job.BookID, fmt.Errorf("convert: %w", err))
	}

	// Structure extraction and chunking read the same converted text and are
	// independent of each other.
	var (
		toc    []models.TOCNode
		pages  int
		chunks []models.Chunk
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		toc = structure.Extract(text)
		pages = structure.PageCount(text)
		return nil
	})
	g.Go(func() error {
		chunks = w.splitter.Split(text, map[string]string{"source": job.FileURL})
		return nil
	})
	_ = g.Wait()

	w.log.Info("structure extracted",
		zap.String("book_id", job.BookID),
		zap.Int("top_level_chapters", len(toc)),
		zap.Int("pages", pages),
		zap.Int("chunks", len(chunks)))

	if err := w.index.Upsert(ctx, chunks, job.BookID); err != nil {
		return "", w.fail(ctx, job.BookID, fmt.Errorf("index: %w", err))
	}

	if err := w.books.CompleteBook(ctx, job.BookID, toc, pages); err != nil {
		return "", w.fail(ctx, job.BookID, fmt.Errorf("complete book: %w", err))
	}

	w.log.Info("ingestion job finished", zap.String("book_id", job.BookID))
	return OutcomeCompleted, nil
}

// fail records the terminal failed status and hands the cause back so the
// queue redelivers. A book is never left sitting at processing.
func (w *IngestWorker) fail(ctx context.Context, bookID string, cause error) error {
	if err := w.books.UpdateBookStatus(ctx, bookID, models.StatusFailed); err != nil {
		w.log.Error("could not mark book failed",
			zap.String("book_id", bookID), zap.Error(err))
	}
	return cause
}
