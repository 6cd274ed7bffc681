package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unboundlabs/unbound/internal/core/chunker"
	"github.com/unboundlabs/unbound/internal/models"
)

type fakeStore struct {
	book      *models.Book
	getErr    error
	claimed   bool
	claimErr  error
	statuses  []string
	structure []models.TOCNode
	pageCount int
	completed bool
	events    []string
}

func (f *fakeStore) CreateBook(_ context.Context, _ *models.Book) error { return nil }

func (f *fakeStore) GetBookByID(_ context.Context, _ string) (*models.Book, error) {
	return f.book, f.getErr
}

func (f *fakeStore) ListBooks(_ context.Context) ([]models.Book, error) { return nil, nil }

func (f *fakeStore) UpdateBookStatus(_ context.Context, _ string, status string) error {
	f.statuses = append(f.statuses, status)
	f.events = append(f.events, "status:"+status)
	return nil
}

func (f *fakeStore) ClaimForProcessing(_ context.Context, _ string) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.claimed {
		f.statuses = append(f.statuses, models.StatusProcessing)
		f.events = append(f.events, "claim")
	}
	return f.claimed, nil
}

func (f *fakeStore) CompleteBook(_ context.Context, _ string, structure []models.TOCNode, pageCount int) error {
	f.completed = true
	f.structure = structure
	f.pageCount = pageCount
	f.statuses = append(f.statuses, models.StatusCompleted)
	f.events = append(f.events, "complete")
	return nil
}

func (f *fakeStore) Close() error { return nil }

type fakeConverter struct {
	text   string
	err    error
	called bool
}

func (f *fakeConverter) Convert(_ context.Context, _ string) (string, error) {
	f.called = true
	return f.text, f.err
}

type fakeIndex struct {
	store  *fakeStore
	bookID string
	chunks []models.Chunk
	err    error
	called bool
}

func (f *fakeIndex) EnsureIndex(_ context.Context, _ string, _ int, _ string) error { return nil }

func (f *fakeIndex) Upsert(_ context.Context, chunks []models.Chunk, bookID string) error {
	f.called = true
	f.bookID = bookID
	f.chunks = chunks
	if f.store != nil {
		f.store.events = append(f.store.events, "upsert")
	}
	return f.err
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ string, _ int) ([]models.Chunk, error) {
	return nil, nil
}

func newTestWorker(store *fakeStore, conv *fakeConverter, index *fakeIndex) *IngestWorker {
	index.store = store
	splitter := chunker.NewWithConfig(chunker.Config{ChunkSize: 20, ChunkOverlap: 4})
	return NewIngestWorker(store, conv, splitter, index, zap.NewNop())
}

func queuedBook(id string) *models.Book {
	return &models.Book{ID: id, Title: "t", FileURL: "http://x/doc.pdf", Status: models.StatusQueued}
}

func TestHandleEndToEnd(t *testing.T) {
	store := &fakeStore{book: queuedBook("b1"), claimed: true}
	conv := &fakeConverter{text: "# Intro\nHello\n## Details\nWorld"}
	index := &fakeIndex{}
	w := newTestWorker(store, conv, index)

	outcome, err := w.Handle(context.Background(), models.IngestJob{BookID: "b1", FileURL: "http://x/doc.pdf"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	// queued -> processing -> completed, and only after the upsert returned
	assert.Equal(t, []string{models.StatusProcessing, models.StatusCompleted}, store.statuses)
	assert.Equal(t, []string{"claim", "upsert", "complete"}, store.events)

	require.Len(t, store.structure, 1)
	assert.Equal(t, "Intro", store.structure[0].Title)
	assert.Equal(t, "intro", store.structure[0].Slug)
	require.Len(t, store.structure[0].Children, 1)
	assert.Equal(t, "Details", store.structure[0].Children[0].Title)
	assert.Equal(t, "details", store.structure[0].Children[0].Slug)
	assert.Empty(t, store.structure[0].Children[0].Children)
	assert.Equal(t, 1, store.pageCount)

	assert.Equal(t, "b1", index.bookID)
	require.Len(t, index.chunks, 2)
	for _, c := range index.chunks {
		assert.Equal(t, "http://x/doc.pdf", c.Metadata["source"])
	}
}

func TestHandleDuplicateDeliverySkips(t *testing.T) {
	book := queuedBook("b1")
	book.Status = models.StatusCompleted
	store := &fakeStore{book: book, claimed: true}
	conv := &fakeConverter{text: "anything"}
	index := &fakeIndex{}
	w := newTestWorker(store, conv, index)

	outcome, err := w.Handle(context.Background(), models.IngestJob{BookID: "b1"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.False(t, conv.called, "duplicate delivery must not re-convert")
	assert.False(t, index.called, "duplicate delivery must not re-index")
	assert.Empty(t, store.statuses)
}

func TestHandleLostClaimSkips(t *testing.T) {
	store := &fakeStore{book: queuedBook("b1"), claimed: false}
	conv := &fakeConverter{text: "anything"}
	index := &fakeIndex{}
	w := newTestWorker(store, conv, index)

	outcome, err := w.Handle(context.Background(), models.IngestJob{BookID: "b1"})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.False(t, conv.called)
	assert.False(t, index.called)
}

func TestHandleUnknownBook(t *testing.T) {
	store := &fakeStore{book: nil}
	w := newTestWorker(store, &fakeConverter{}, &fakeIndex{})

	_, err := w.Handle(context.Background(), models.IngestJob{BookID: "missing"})

	assert.ErrorContains(t, err, "book not found")
}

func TestHandleConversionFailureMarksFailed(t *testing.T) {
	store := &fakeStore{book: queuedBook("b1"), claimed: true}
	conv := &fakeConverter{err: errors.New("unsupported file")}
	index := &fakeIndex{}
	w := newTestWorker(store, conv, index)

	_, err := w.Handle(context.Background(), models.IngestJob{BookID: "b1", FileURL: "http://x/doc.bin"})

	require.Error(t, err)
	assert.ErrorContains(t, err, "convert")
	assert.Equal(t, []string{models.StatusProcessing, models.StatusFailed}, store.statuses)
	assert.False(t, index.called)
	assert.False(t, store.completed)
}

func TestHandleIndexingFailureMarksFailed(t *testing.T) {
	store := &fakeStore{book: queuedBook("b1"), claimed: true}
	conv := &fakeConverter{text: "# Intro\nHello"}
	index := &fakeIndex{err: errors.New("vector db unreachable")}
	w := newTestWorker(store, conv, index)

	_, err := w.Handle(context.Background(), models.IngestJob{BookID: "b1", FileURL: "http://x/doc.pdf"})

	require.Error(t, err)
	assert.ErrorContains(t, err, "index")
	assert.Equal(t, []string{models.StatusProcessing, models.StatusFailed}, store.statuses)
	assert.False(t, store.completed, "failed upsert must never read as completed")
}
