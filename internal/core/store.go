package core

import (
	"context"
	"io"

	"github.com/readstack-hq/readstack/internal/models"
)

// DbClient defines all persistence operations the services need. It abstracts
// Postgres/pgvector so higher layers never depend on a specific backend.
type DbClient interface {
	CreateBook(ctx context.Context, book *models.Book) error
	GetBookByID(ctx context.Context, id string) (*models.Book, error)
	ListBooksByUser(ctx context.Context, userID string) ([]models.Book, error)
	UpdateBookStatus(ctx context.Context, id, status, failureReason string, chunkCount int) error

	// ReplaceChunks atomically discards any existing chunk set for the book
	// and installs the new one. Readers observe either the full old set or
	// the full new set, never a mix.
	ReplaceChunks(ctx context.Context, bookID string, chunks []models.Chunk) error
	ListChunks(ctx context.Context, bookID string) ([]models.Chunk, error)
	HasChunks(ctx context.Context, bookID string) (bool, error)

	SearchChunksByEmbedding(ctx context.Context, bookID string, queryVec []float32, limit int) ([]models.Chunk, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage holding the
// raw uploaded files.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
