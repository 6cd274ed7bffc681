package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unboundlabs/unbound/internal/config"
	"github.com/unboundlabs/unbound/internal/core"
	"github.com/unboundlabs/unbound/internal/models"
)

// Enqueuer hands an ingestion job to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.IngestJob) error
}

type BookHandler struct {
	books        core.BookStore
	objectclient core.ObjectClient
	jobs         Enqueuer
	cfg          *config.Config
	log          *zap.Logger
}

func NewBookHandler(books core.BookStore, obj core.ObjectClient, jobs Enqueuer, cfg *config.Config, log *zap.Logger) *BookHandler {
	return &BookHandler{books: books, objectclient: obj, jobs: jobs, cfg: cfg, log: log}
}

// UploadBook stores the file in S3, records the book as queued and enqueues
// the ingestion job. The job is fired after the row exists so a fast worker
// always finds the book.
func (h *BookHandler) UploadBook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(52 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	title := r.FormValue("title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	bookID := uuid.NewString()
	s3Key := bookID + "/" + filepath.Base(header.Filename)

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	url, err := h.objectclient.UploadFile(uploadCtx, h.cfg.BucketName, s3Key, data, contentType)
	if err != nil {
		h.log.Error("file upload failed", zap.String("key", s3Key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	now := time.Now()
	book := &models.Book{
		ID:        bookID,
		Title:     title,
		FileURL:   url,
		Status:    models.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.books.CreateBook(uploadCtx, book); err != nil {
		h.log.Error("book insert failed", zap.String("book_id", bookID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store book")
		return
	}

	job := models.IngestJob{BookID: bookID, FileURL: url}
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		// The book row stays queued; a worker sweep or a manual requeue can
		// pick it up. Do not fail the upload over it.
		h.log.Error("could not enqueue ingestion job",
			zap.String("book_id", bookID), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, map[string]string{"bookId": bookID})
}

// GetBook returns one book with its processing status and structure.
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	book, err := h.books.GetBookByID(r.Context(), id)
	if err != nil {
		h.log.Error("book lookup failed", zap.String("book_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load book")
		return
	}
	if book == nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.ListBooks(r.Context())
	if err != nil {
		h.log.Error("book listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list books")
		return
	}
	if books == nil {
		books = []models.Book{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(books)
}
