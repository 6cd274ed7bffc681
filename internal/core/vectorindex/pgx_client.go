package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgxIndexClient implements IndexClient on Postgres with the pgvector
// extension. One table per index name; book_id is a filterable column so
// scoped queries never leave the database. The similarity metric is fixed at
// construction so schema opclass and query operator can never disagree.
type PgxIndexClient struct {
	pool     *pgxpool.Pool
	metric   string
	opclass  string
	operator string
}

var _ IndexClient = (*PgxIndexClient)(nil)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func NewPgxIndexClient(ctx context.Context, connString, metric string) (*PgxIndexClient, error) {
	opclass, operator, err := metricOps(metric)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect vector database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping vector database: %w", err)
	}
	return &PgxIndexClient{pool: pool, metric: metric, opclass: opclass, operator: operator}, nil
}

func (c *PgxIndexClient) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// EnsureSchema creates the extension, table and indexes if absent. All
// statements are IF NOT EXISTS, and the duplicate-object errors a concurrent
// creator can still race into are swallowed, so multiple processes may call
// this at startup.
func (c *PgxIndexClient) EnsureSchema(ctx context.Context, index string, dim int, metric string) error {
	if !identRe.MatchString(index) {
		return fmt.Errorf("invalid index name %q", index)
	}
	opclass, _, err := metricOps(metric)
	if err != nil {
		return err
	}
	if opclass != c.opclass {
		return fmt.Errorf("index metric %q does not match client metric %q", metric, c.metric)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				book_id TEXT NOT NULL,
				content TEXT NOT NULL,
				metadata JSONB,
				embedding vector(%d)
			)`, index, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_book_id_idx ON %s (book_id)`, index, index),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s_embedding_idx
			ON %s
			USING ivfflat (embedding %s)
			WITH (lists = 100)`, index, index, opclass),
	}

	for _, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil && !isDuplicateObject(err) {
			return fmt.Errorf("ensure schema for %s: %w", index, err)
		}
	}
	return nil
}

// InsertBatch writes one batch in a single transaction, so a failed batch
// leaves no partial rows behind and a retried batch cannot double-insert.
func (c *PgxIndexClient) InsertBatch(ctx context.Context, index string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if !identRe.MatchString(index) {
		return fmt.Errorf("invalid index name %q", index)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, book_id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, index)

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		vec := pgvector.NewVector(r.Embedding)
		if _, err := tx.Exec(ctx, stmt, r.ID, r.BookID, r.Text, string(meta), vec); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// Query runs the scoped nearest-neighbor search. The WHERE clause on book_id
// is applied before ranking, so other books' records are never eligible.
// Ranking uses the distance operator matching the configured metric, so the
// opclass chosen at schema time stays usable.
func (c *PgxIndexClient) Query(ctx context.Context, index string, bookID string, embedding []float32, k int) ([]Record, error) {
	if !identRe.MatchString(index) {
		return nil, fmt.Errorf("invalid index name %q", index)
	}
	query := c.searchQuery(index)

	vec := pgvector.NewVector(embedding)
	rows, err := c.pool.Query(ctx, query, bookID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r    Record
			meta *string
			emb  pgvector.Vector
		)
		if err := rows.Scan(&r.ID, &r.BookID, &r.Text, &meta, &emb); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if meta != nil {
			if err := json.Unmarshal([]byte(*meta), &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		r.Embedding = emb.Slice()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *PgxIndexClient) searchQuery(index string) string {
	return fmt.Sprintf(`
		SELECT id, book_id, content, metadata::text, embedding
		FROM %s
		WHERE book_id = $1
		ORDER BY embedding %s $2
		LIMIT $3`, index, c.operator)
}

// metricOps maps a similarity metric to the pgvector operator class and the
// distance operator used at query time.
func metricOps(metric string) (opclass, operator string, err error) {
	switch metric {
	case "", "cosine":
		return "vector_cosine_ops", "<=>", nil
	case "l2", "euclidean":
		return "vector_l2_ops", "<->", nil
	case "ip", "inner_product":
		return "vector_ip_ops", "<#>", nil
	default:
		return "", "", fmt.Errorf("unsupported metric %q", metric)
	}
}

// isDuplicateObject reports the SQLSTATEs a lost create-race produces.
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P07", "42710", "23505": // duplicate table / object / key
			return true
		}
	}
	return false
}
