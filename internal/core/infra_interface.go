package core

import (
	"context"

	"github.com/unboundlabs/unbound/internal/models"
)

// BookStore defines the persistence operations the ingestion worker and the
// API need. It abstracts Postgres so higher layers never depend on a specific DB.
type BookStore interface {
	CreateBook(ctx context.Context, book *models.Book) error
	GetBookByID(ctx context.Context, id string) (*models.Book, error)
	ListBooks(ctx context.Context) ([]models.Book, error)
	UpdateBookStatus(ctx context.Context, id string, status string) error

	// ClaimForProcessing flips queued|failed -> processing and reports whether
	// this caller won the claim. A false result with nil error means another
	// worker holds the book or it is already terminal.
	ClaimForProcessing(ctx context.Context, id string) (bool, error)

	// CompleteBook persists status, structure and page count in one update.
	CompleteBook(ctx context.Context, id string, structure []models.TOCNode, pageCount int) error

	Close() error
}

// Converter turns a remote file into plain text. The underlying conversion
// engine is a black box; errors abort the ingestion job.
type Converter interface {
	Convert(ctx context.Context, fileURL string) (string, error)
}

// VectorIndex is the gateway to the external nearest-neighbor index storing
// chunk embeddings plus metadata for scoped retrieval.
type VectorIndex interface {
	// EnsureIndex creates the named index if absent; it is idempotent and safe
	// to call from multiple processes racing to create the same index.
	EnsureIndex(ctx context.Context, name string, dim int, metric string) error

	// Upsert stamps every chunk with the book identifier and submits batches
	// sequentially. A batch failure after its single retry propagates; earlier
	// batches stay indexed.
	Upsert(ctx context.Context, chunks []models.Chunk, bookID string) error

	// Search returns the top-k chunks for the query, filtered server-side to
	// the given book. Records from other books are never returned.
	Search(ctx context.Context, bookID string, query string, k int) ([]models.Chunk, error)
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
}
