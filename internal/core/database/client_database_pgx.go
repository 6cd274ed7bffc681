package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/unboundlabs/unbound/internal/core"
	"github.com/unboundlabs/unbound/internal/models"
)

type BookStoreClient struct {
	db *sql.DB
}

func NewBookStore(ctx context.Context, databaseURL string) (core.BookStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &BookStoreClient{db: db}, nil
}

func (c *BookStoreClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *BookStoreClient) CreateBook(ctx context.Context, book *models.Book) error {
	if book == nil {
		return errors.New("nil book")
	}
	const q = `
		INSERT INTO books (id, title, file_url, processing_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, q,
		book.ID, book.Title, book.FileURL, book.Status, book.CreatedAt, book.UpdatedAt)
	return err
}

func (c *BookStoreClient) GetBookByID(ctx context.Context, id string) (*models.Book, error) {
	const q = `
		SELECT id, title, file_url, processing_status, structure, page_count, created_at, updated_at
		FROM books
		WHERE id = $1
	`
	var (
		b         models.Book
		structure []byte
		pageCount sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.Title, &b.FileURL, &b.Status, &structure, &pageCount, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(structure) > 0 {
		if err := json.Unmarshal(structure, &b.Structure); err != nil {
			return nil, fmt.Errorf("decode structure for book %s: %w", id, err)
		}
	}
	if pageCount.Valid {
		b.PageCount = int(pageCount.Int64)
	}
	return &b, nil
}

func (c *BookStoreClient) ListBooks(ctx context.Context) ([]models.Book, error) {
	const q = `
		SELECT id, title, file_url, processing_status, page_count, created_at, updated_at
		FROM books
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Book
	for rows.Next() {
		var (
			b         models.Book
			pageCount sql.NullInt64
		)
		if err := rows.Scan(
			&b.ID, &b.Title, &b.FileURL, &b.Status, &pageCount, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if pageCount.Valid {
			b.PageCount = int(pageCount.Int64)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (c *BookStoreClient) UpdateBookStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE books
		SET processing_status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("book not found: %s", id)
	}
	return nil
}

// ClaimForProcessing is the per-book advisory lock: only the caller whose
// conditional write lands moves the book out of queued/failed. Zero affected
// rows means another worker already claimed it or the book is terminal.
func (c *BookStoreClient) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE books
		SET processing_status = $2, updated_at = now()
		WHERE id = $1 AND processing_status IN ($3, $4)
	`
	res, err := c.db.ExecContext(ctx, q, id, models.StatusProcessing, models.StatusQueued, models.StatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompleteBook flips the terminal success state together with the extracted
// structure and page count in a single update.
func (c *BookStoreClient) CompleteBook(ctx context.Context, id string, structure []models.TOCNode, pageCount int) error {
	if structure == nil {
		structure = []models.TOCNode{}
	}
	payload, err := json.Marshal(structure)
	if err != nil {
		return fmt.Errorf("encode structure: %w", err)
	}

	const q = `
		UPDATE books
		SET processing_status = $2, structure = $3::jsonb, page_count = $4, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, models.StatusCompleted, string(payload), pageCount)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("book not found: %s", id)
	}
	return nil
}
