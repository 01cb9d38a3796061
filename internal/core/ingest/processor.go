package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/core/chunker"
	"github.com/readstack-hq/readstack/internal/models"
)

const embedBatchSize = 16

// Result is the outcome of one Process call.
type Result struct {
	AlreadyProcessed bool `json:"already_processed"`
	ChunkCount       int  `json:"chunk_count"`
}

// Processor drives extract -> chunk -> replace for a single book. At most one
// run is in flight per book ID: concurrent calls for the same book coalesce
// into the running one and share its result, so two chunk-set replacements
// for one book can never interleave. Readers never take this guard.
type Processor struct {
	db        core.DbClient
	extractor core.DocumentExtractor
	splitter  *chunker.Splitter
	embedder  core.EmbeddingProvider // nil disables embeddings
	log       *zap.Logger

	flight singleflight.Group
}

func NewProcessor(db core.DbClient, extractor core.DocumentExtractor, splitter *chunker.Splitter, embedder core.EmbeddingProvider, log *zap.Logger) *Processor {
	return &Processor{
		db:        db,
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		log:       log,
	}
}

// Process runs the pipeline for one book. With force false it is idempotent:
// an already-chunked book returns AlreadyProcessed without touching the
// stored set. Failures are recorded on the book row and returned; the prior
// chunk set always survives a failed run.
func (p *Processor) Process(ctx context.Context, book *models.Book, data []byte, force bool) (*Result, error) {
	v, err, _ := p.flight.Do(book.ID, func() (any, error) {
		return p.run(ctx, book, data, force)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (p *Processor) run(ctx context.Context, book *models.Book, data []byte, force bool) (*Result, error) {
	if !force {
		has, err := p.db.HasChunks(ctx, book.ID)
		if err != nil {
			return nil, fmt.Errorf("existence check: %w", err)
		}
		if has {
			return &Result{AlreadyProcessed: true, ChunkCount: book.ChunkCount}, nil
		}
	}

	if err := p.db.UpdateBookStatus(ctx, book.ID, models.StatusProcessing, "", book.ChunkCount); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	segments, err := p.extractor.Extract(ctx, data, book.FileType)
	if err != nil {
		return nil, p.fail(book, err)
	}

	chunks := p.splitter.Split(book.ID, segments)
	if len(chunks) == 0 {
		return nil, p.fail(book, core.ErrEmptyDocument)
	}
	now := time.Now()
	for i := range chunks {
		chunks[i].CreatedAt = now
	}

	p.embedChunks(ctx, chunks)

	if err := p.db.ReplaceChunks(ctx, book.ID, chunks); err != nil {
		return nil, p.fail(book, err)
	}

	if err := p.db.UpdateBookStatus(ctx, book.ID, models.StatusProcessed, "", len(chunks)); err != nil {
		return nil, fmt.Errorf("mark processed: %w", err)
	}

	p.log.Info("book processed",
		zap.String("book_id", book.ID),
		zap.Int("chunks", len(chunks)),
	)
	return &Result{ChunkCount: len(chunks)}, nil
}

// fail records the failure on the book row, keeping the previous chunk count,
// and returns the original error.
func (p *Processor) fail(book *models.Book, cause error) error {
	if err := p.db.UpdateBookStatus(context.Background(), book.ID, models.StatusFailed, Reason(cause), book.ChunkCount); err != nil {
		p.log.Error("record failure", zap.String("book_id", book.ID), zap.Error(err))
	}
	p.log.Warn("book processing failed",
		zap.String("book_id", book.ID),
		zap.String("reason", Reason(cause)),
		zap.Error(cause),
	)
	return cause
}

// embedChunks fills in vectors batch by batch when a provider is configured.
// Embedding is an enhancement on top of the keyword baseline, so failures are
// logged and the chunks persist without vectors.
func (p *Processor) embedChunks(ctx context.Context, chunks []models.Chunk) {
	if p.embedder == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].TextContent
			}
			vecs, err := p.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.log.Warn("chunk embedding skipped", zap.Error(err))
		for i := range chunks {
			chunks[i].Embedding = nil
		}
	}
}

// Reason maps a pipeline error to its machine-readable failure reason.
func Reason(err error) string {
	switch {
	case errors.Is(err, core.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, core.ErrCorruptFile):
		return "corrupt_file"
	case errors.Is(err, core.ErrEmptyDocument):
		return "empty_document"
	case errors.Is(err, core.ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, core.ErrConstraintViolation):
		return "constraint_violation"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal_error"
	}
}
