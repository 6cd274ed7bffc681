package models

import (
	"time"
)

// Processing states of a book. A book is created as queued and driven by the
// ingestion worker; completed and failed are terminal for a given job.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Book represents one uploaded book/document and its processing state.
type Book struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	FileURL   string    `db:"file_url" json:"file_url"`
	Status    string    `db:"processing_status" json:"processing_status"`
	Structure []TOCNode `db:"structure" json:"structure,omitempty"` // present once completed
	PageCount int       `db:"page_count" json:"page_count,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TOCNode is one entry of the recovered heading hierarchy. Children always sit
// under the nearest open ancestor with a strictly smaller level.
type TOCNode struct {
	Title    string    `json:"title"`
	Slug     string    `json:"slug"`
	Level    int       `json:"level"`
	Children []TOCNode `json:"children"`
}

// Chunk is a bounded-size segment of converted text plus provenance metadata,
// the unit of vector indexing. Each chunk owns its metadata map.
type Chunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// IngestJob is the queue payload describing one book to convert, structure,
// chunk and index.
type IngestJob struct {
	BookID  string `json:"bookId"`
	FileURL string `json:"fileUrl"`
}
