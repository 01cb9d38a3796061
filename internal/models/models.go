package models

import (
	"time"
)

// Supported upload media types.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeEPUB = "application/epub+zip"
)

// Processing states for a book. A book moves unprocessed -> processing ->
// processed, or ends in failed. Only the ingest orchestrator mutates these.
const (
	StatusUnprocessed = "unprocessed"
	StatusProcessing  = "processing"
	StatusProcessed   = "processed"
	StatusFailed      = "failed"
)

// Book represents a user-owned uploaded document.
type Book struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Title         string    `db:"title" json:"title"`
	FileName      string    `db:"file_name" json:"file_name"`
	StorageURL    string    `db:"storage_url" json:"storage_url"`
	FileType      string    `db:"file_type" json:"file_type"` // MIME type of the source file
	Status        string    `db:"status" json:"status"`
	FailureReason string    `db:"failure_reason" json:"failure_reason,omitempty"`
	ChunkCount    int       `db:"chunk_count" json:"chunk_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Chunk is the unit of retrieval: one bounded slice of a book's extracted
// text. For a given book the chunk_index values are dense, 0-based and
// strictly ordered by reading position. Chunks are immutable once written;
// reprocessing replaces the whole set.
type Chunk struct {
	ID           string    `db:"id" json:"id"`
	BookID       string    `db:"book_id" json:"book_id"`
	ChunkIndex   int       `db:"chunk_index" json:"chunk_index"`
	TextContent  string    `db:"text_content" json:"text_content"`
	ChapterTitle string    `db:"chapter_title" json:"chapter_title,omitempty"`
	TokenCount   int       `db:"token_count" json:"token_count"`
	Embedding    []float32 `db:"embedding" json:"-"` // pgvector column, nil when embeddings are disabled
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Segment is the extraction intermediate: one titled slice of readable
// content (an EPUB spine item, a PDF page run) consumed by the chunker.
type Segment struct {
	Title string
	Text  string
}
