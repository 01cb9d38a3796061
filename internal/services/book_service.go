package services

import (
	"bytes"
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/models"
)

// BookService owns book bookkeeping: file storage, row creation and the
// ownership-scoped lookup every book route goes through.
type BookService struct {
	db      core.DbClient
	storage core.ObjectClient
	bucket  string
}

func NewBookService(db core.DbClient, storage core.ObjectClient, bucket string) *BookService {
	return &BookService{db: db, storage: storage, bucket: bucket}
}

// UploadAndCreate stores the raw file and creates the book row in the
// unprocessed state. Processing itself is triggered separately.
func (s *BookService) UploadAndCreate(ctx context.Context, userID, filename, contentType string, data []byte) (*models.Book, error) {
	bookID := uuid.NewString()
	key := s.objectKey(userID, bookID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, bytes.NewReader(data), contentType)
	if err != nil {
		return nil, err
	}

	book := &models.Book{
		ID:         bookID,
		UserID:     userID,
		Title:      titleFromFilename(filename),
		FileName:   filename,
		StorageURL: url,
		FileType:   contentType,
		Status:     models.StatusUnprocessed,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := s.db.CreateBook(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// GetOwned returns the book only if it belongs to userID. A book owned by
// someone else is ErrUnauthorized, never silently treated as missing data.
func (s *BookService) GetOwned(ctx context.Context, bookID, userID string) (*models.Book, error) {
	book, err := s.db.GetBookByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.UserID != userID {
		return nil, core.ErrUnauthorized
	}
	return book, nil
}

func (s *BookService) ListByUser(ctx context.Context, userID string) ([]models.Book, error) {
	return s.db.ListBooksByUser(ctx, userID)
}

// objectKey creates a consistent S3 key layout.
func (s *BookService) objectKey(userID, bookID, filename string) string {
	filename = strings.TrimSpace(filepath.Base(filename))
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "books", bookID, filename)
}

// titleFromFilename derives a display title from the uploaded file name.
func titleFromFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.TrimSpace(name)
	if name == "" {
		return "Untitled"
	}
	return name
}
