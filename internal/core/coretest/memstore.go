// Package coretest provides in-memory fakes of the storage interfaces for
// tests that exercise ingestion and retrieval without Postgres or S3.
package coretest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/models"
)

// MemStore implements core.DbClient backed by maps. Safe for concurrent use.
type MemStore struct {
	mu     sync.Mutex
	books  map[string]models.Book
	chunks map[string][]models.Chunk

	// ReplaceDelay, when set, is slept inside ReplaceChunks while holding
	// the lock. Lets tests widen the replacement window.
	ReplaceDelay time.Duration

	// FailReplace, when set, makes the next ReplaceChunks call return it.
	FailReplace error
}

func NewMemStore() *MemStore {
	return &MemStore{
		books:  make(map[string]models.Book),
		chunks: make(map[string][]models.Chunk),
	}
}

func (m *MemStore) CreateBook(ctx context.Context, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[book.ID]; ok {
		return core.ErrConstraintViolation
	}
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now
	m.books[book.ID] = *book
	return nil
}

func (m *MemStore) GetBookByID(ctx context.Context, id string) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, core.ErrBookNotFound
	}
	out := b
	return &out, nil
}

func (m *MemStore) ListBooksByUser(ctx context.Context, userID string) ([]models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Book
	for _, b := range m.books {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) UpdateBookStatus(ctx context.Context, id, status, failureReason string, chunkCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return core.ErrBookNotFound
	}
	b.Status = status
	b.FailureReason = failureReason
	b.ChunkCount = chunkCount
	b.UpdatedAt = time.Now()
	m.books[id] = b
	return nil
}

func (m *MemStore) ReplaceChunks(ctx context.Context, bookID string, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReplace != nil {
		err := m.FailReplace
		m.FailReplace = nil
		return err
	}
	if m.ReplaceDelay > 0 {
		time.Sleep(m.ReplaceDelay)
	}
	seen := make(map[int]bool, len(chunks))
	for _, ch := range chunks {
		if seen[ch.ChunkIndex] {
			return fmt.Errorf("duplicate chunk_index %d: %w", ch.ChunkIndex, core.ErrConstraintViolation)
		}
		seen[ch.ChunkIndex] = true
	}
	cp := make([]models.Chunk, len(chunks))
	copy(cp, chunks)
	sort.Slice(cp, func(i, j int) bool { return cp[i].ChunkIndex < cp[j].ChunkIndex })
	m.chunks[bookID] = cp
	return nil
}

func (m *MemStore) ListChunks(ctx context.Context, bookID string) ([]models.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.chunks[bookID]
	out := make([]models.Chunk, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemStore) HasChunks(ctx context.Context, bookID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[bookID]) > 0, nil
}

func (m *MemStore) SearchChunksByEmbedding(ctx context.Context, bookID string, queryVec []float32, limit int) ([]models.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Chunk
	for _, ch := range m.chunks[bookID] {
		if len(ch.Embedding) == 0 {
			continue
		}
		out = append(out, ch)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }

// MemObjects implements core.ObjectClient over a map keyed by bucket/key.
type MemObjects struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemObjects() *MemObjects {
	return &MemObjects{files: make(map[string][]byte)}
}

func objectKey(bucket, key string) string { return bucket + "/" + key }

func (m *MemObjects) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[objectKey(bucket, key)] = buf.Bytes()
	return fmt.Sprintf("https://%s.s3.test.amazonaws.com/%s", bucket, key), nil
}

func (m *MemObjects) DeleteFile(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, objectKey(bucket, key))
	return nil
}

func (m *MemObjects) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[objectKey(bucket, key)]
	if !ok {
		return nil, core.ErrStorageUnavailable
	}
	return data, nil
}
