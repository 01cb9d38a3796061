package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/readstack-hq/readstack/internal/config"
	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
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

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// mapStoreErr folds driver errors into the core taxonomy. Unique violations
// on (book_id, chunk_index) surface as ErrConstraintViolation; connection
// class failures are transient and retryable.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %s", core.ErrConstraintViolation, pgErr.Detail)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
		}
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}
	return err
}

// Books

func (c *DatabaseClient) CreateBook(ctx context.Context, book *models.Book) error {
	if book == nil {
		return errors.New("nil book")
	}
	const q = `
		INSERT INTO books
			(id, user_id, title, file_name, storage_url, file_type, status, chunk_count, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), COALESCE($10, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		book.ID, book.UserID, book.Title, book.FileName, book.StorageURL,
		book.FileType, book.Status, book.ChunkCount, book.CreatedAt, book.UpdatedAt)
	return mapStoreErr(err)
}

func (c *DatabaseClient) GetBookByID(ctx context.Context, id string) (*models.Book, error) {
	const q = `
		SELECT id, user_id, title, file_name, storage_url, file_type, status,
		       COALESCE(failure_reason, ''), chunk_count, created_at, updated_at
		FROM books
		WHERE id = $1
	`
	var b models.Book
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.UserID, &b.Title, &b.FileName, &b.StorageURL, &b.FileType,
		&b.Status, &b.FailureReason, &b.ChunkCount, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrBookNotFound
	}
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &b, nil
}

func (c *DatabaseClient) ListBooksByUser(ctx context.Context, userID string) ([]models.Book, error) {
	const q = `
		SELECT id, user_id, title, file_name, storage_url, file_type, status,
		       COALESCE(failure_reason, ''), chunk_count, created_at, updated_at
		FROM books
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	var out []models.Book
	for rows.Next() {
		var b models.Book
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.Title, &b.FileName, &b.StorageURL, &b.FileType,
			&b.Status, &b.FailureReason, &b.ChunkCount, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateBookStatus(ctx context.Context, id, status, failureReason string, chunkCount int) error {
	const q = `
		UPDATE books
		SET status = $2, failure_reason = NULLIF($3, ''), chunk_count = $4, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, failureReason, chunkCount)
	if err != nil {
		return mapStoreErr(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrBookNotFound
	}
	return nil
}

// Chunks

// ReplaceChunks swaps a book's chunk set inside one transaction: the old set
// is deleted and the new set inserted before commit, so concurrent readers
// see either the full old set or the full new set.
func (c *DatabaseClient) ReplaceChunks(ctx context.Context, bookID string, chunks []models.Chunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return mapStoreErr(err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM book_chunks WHERE book_id = $1`, bookID); err != nil {
		_ = tx.Rollback()
		return mapStoreErr(err)
	}

	const q = `
		INSERT INTO book_chunks
			(id, book_id, chunk_index, text_content, chapter_title, token_count, embedding, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, COALESCE($8, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return mapStoreErr(err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		var vec any
		if len(ch.Embedding) > 0 {
			vec = pgvector.NewVector(ch.Embedding)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, bookID, ch.ChunkIndex, ch.TextContent, ch.ChapterTitle, ch.TokenCount, vec, ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return mapStoreErr(err)
		}
	}
	return mapStoreErr(tx.Commit())
}

func (c *DatabaseClient) ListChunks(ctx context.Context, bookID string) ([]models.Chunk, error) {
	const q = `
		SELECT id, book_id, chunk_index, text_content, COALESCE(chapter_title, ''), token_count, created_at
		FROM book_chunks
		WHERE book_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, bookID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		if err := rows.Scan(
			&ch.ID, &ch.BookID, &ch.ChunkIndex, &ch.TextContent, &ch.ChapterTitle, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) HasChunks(ctx context.Context, bookID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM book_chunks WHERE book_id = $1)`
	var exists bool
	if err := c.db.QueryRowContext(ctx, q, bookID).Scan(&exists); err != nil {
		return false, mapStoreErr(err)
	}
	return exists, nil
}

// SearchChunksByEmbedding returns the top-limit chunks of a book nearest to
// the query vector. Chunks without embeddings are excluded.
func (c *DatabaseClient) SearchChunksByEmbedding(ctx context.Context, bookID string, queryVec []float32, limit int) ([]models.Chunk, error) {
	const q = `
		SELECT id, book_id, chunk_index, text_content, COALESCE(chapter_title, ''), token_count, created_at
		FROM book_chunks
		WHERE book_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <-> $2, chunk_index ASC
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, bookID, vec, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		if err := rows.Scan(
			&ch.ID, &ch.BookID, &ch.ChunkIndex, &ch.TextContent, &ch.ChapterTitle, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
