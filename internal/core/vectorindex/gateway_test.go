package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unboundlabs/unbound/internal/models"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 0, 1}
	}
	return out, nil
}

type fakeClient struct {
	calls    int
	failFrom int // InsertBatch calls numbered >= failFrom fail; 0 disables
	batches  [][]Record

	queryIndex  string
	queryBookID string
	queryK      int
	results     []Record
	queryErr    error

	schemaErr error
}

func (f *fakeClient) EnsureSchema(_ context.Context, index string, dim int, metric string) error {
	return f.schemaErr
}

func (f *fakeClient) InsertBatch(_ context.Context, index string, records []Record) error {
	f.calls++
	if f.failFrom > 0 && f.calls >= f.failFrom {
		return fmt.Errorf("batch rejected (call %d)", f.calls)
	}
	kept := make([]Record, len(records))
	copy(kept, records)
	f.batches = append(f.batches, kept)
	return nil
}

func (f *fakeClient) Query(_ context.Context, index string, bookID string, _ []float32, k int) ([]Record, error) {
	f.queryIndex = index
	f.queryBookID = bookID
	f.queryK = k
	return f.results, f.queryErr
}

func makeChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			Text:     fmt.Sprintf("chunk %d", i),
			Metadata: map[string]string{"source": "http://x/doc.pdf"},
		}
	}
	return chunks
}

func newTestGateway(client IndexClient, emb *fakeEmbedder, batchSize int) *Gateway {
	return NewGateway(client, emb, Config{
		Index:     "unbound_index",
		Dim:       3,
		BatchSize: batchSize,
		Retry:     RetryPolicy{Attempts: 2, Backoff: 0}, // zero-backoff for tests
	}, zap.NewNop())
}

func TestUpsertPartitionsIntoBatches(t *testing.T) {
	client := &fakeClient{}
	emb := &fakeEmbedder{}
	g := newTestGateway(client, emb, 100)

	err := g.Upsert(context.Background(), makeChunks(250), "b1")

	require.NoError(t, err)
	require.Len(t, client.batches, 3)
	assert.Len(t, client.batches[0], 100)
	assert.Len(t, client.batches[1], 100)
	assert.Len(t, client.batches[2], 50)

	seen := make(map[string]bool)
	for _, batch := range client.batches {
		for _, r := range batch {
			assert.Equal(t, "b1", r.BookID)
			assert.Equal(t, "b1", r.Metadata["book_id"])
			assert.Equal(t, "http://x/doc.pdf", r.Metadata["source"])
			assert.False(t, seen[r.ID], "duplicate record id")
			seen[r.ID] = true
		}
	}
	assert.Len(t, seen, 250)
}

func TestUpsertPersistentFailureRetriesExactlyOnce(t *testing.T) {
	client := &fakeClient{failFrom: 1}
	emb := &fakeEmbedder{}
	g := newTestGateway(client, emb, 100)

	err := g.Upsert(context.Background(), makeChunks(10), "b1")

	require.Error(t, err) // both attempts hit the persistent fault
	assert.Equal(t, 2, client.calls)
	assert.Empty(t, client.batches)
}

func TestUpsertTransientBatchFailureIndexedExactlyOnce(t *testing.T) {
	client := &transientClient{failOnCall: 1}
	emb := &fakeEmbedder{}
	g := newTestGateway(client, emb, 100)

	err := g.Upsert(context.Background(), makeChunks(10), "b1")

	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	require.Len(t, client.batches, 1) // retried batch lands exactly once
	assert.Len(t, client.batches[0], 10)
}

func TestUpsertRetryExhaustedKeepsEarlierBatches(t *testing.T) {
	client := &fakeClient{failFrom: 2} // batch 0 lands, batch 1 fails twice
	emb := &fakeEmbedder{}
	g := newTestGateway(client, emb, 100)

	err := g.Upsert(context.Background(), makeChunks(250), "b1")

	require.Error(t, err)
	assert.Equal(t, 3, client.calls) // 1 success + 2 failed attempts
	require.Len(t, client.batches, 1)
	assert.Len(t, client.batches[0], 100) // earlier batch stays indexed
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	client := &fakeClient{}
	g := newTestGateway(client, &fakeEmbedder{}, 100)

	require.NoError(t, g.Upsert(context.Background(), nil, "b1"))
	assert.Zero(t, client.calls)
}

func TestSearchScopesToBook(t *testing.T) {
	client := &fakeClient{results: []Record{
		{Text: "Hello", Metadata: map[string]string{"book_id": "b1"}},
		{Text: "World", Metadata: map[string]string{"book_id": "b1"}},
	}}
	g := newTestGateway(client, &fakeEmbedder{}, 100)

	chunks, err := g.Search(context.Background(), "b1", "What is this about?", 5)

	require.NoError(t, err)
	assert.Equal(t, "unbound_index", client.queryIndex)
	assert.Equal(t, "b1", client.queryBookID)
	assert.Equal(t, 5, client.queryK)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Hello", chunks[0].Text)
	for _, c := range chunks {
		assert.Equal(t, "b1", c.Metadata["book_id"])
	}
}

func TestSearchDefaultsK(t *testing.T) {
	client := &fakeClient{}
	g := newTestGateway(client, &fakeEmbedder{}, 100)

	_, err := g.Search(context.Background(), "b1", "q", 0)

	require.NoError(t, err)
	assert.Equal(t, 5, client.queryK)
}

func TestSearchEmbedFailure(t *testing.T) {
	g := newTestGateway(&fakeClient{}, &fakeEmbedder{err: errors.New("quota exhausted")}, 100)

	_, err := g.Search(context.Background(), "b1", "q", 5)

	assert.ErrorContains(t, err, "embed query")
}

func TestEnsureIndexWrapsClientError(t *testing.T) {
	g := newTestGateway(&fakeClient{schemaErr: errors.New("db unreachable")}, &fakeEmbedder{}, 100)

	err := g.EnsureIndex(context.Background(), "unbound_index", 3, "cosine")

	assert.ErrorContains(t, err, `ensure index "unbound_index"`)
}

// transientClient fails exactly one numbered call, then recovers.
type transientClient struct {
	calls      int
	failOnCall int
	batches    [][]Record
}

func (f *transientClient) EnsureSchema(_ context.Context, _ string, _ int, _ string) error {
	return nil
}

func (f *transientClient) InsertBatch(_ context.Context, _ string, records []Record) error {
	f.calls++
	if f.calls == f.failOnCall {
		return errors.New("transient fault")
	}
	kept := make([]Record, len(records))
	copy(kept, records)
	f.batches = append(f.batches, kept)
	return nil
}

func (f *transientClient) Query(_ context.Context, _ string, _ string, _ []float32, _ int) ([]Record, error) {
	return nil, nil
}
