package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/core/objectstore"
	"github.com/readstack-hq/readstack/internal/models"
)

const processTimeout = 5 * time.Minute

// Ingestor is the deferred invocation mode: the upload path enqueues a book
// ID after acknowledging the request, and a worker pool runs the pipeline in
// the background. Outcomes are observable only through the book's processing
// state, never returned to the original caller.
type Ingestor struct {
	db   core.DbClient
	obj  core.ObjectClient
	proc *Processor
	log  *zap.Logger
	jobs chan string
}

func NewIngestor(db core.DbClient, obj core.ObjectClient, proc *Processor, log *zap.Logger) *Ingestor {
	return &Ingestor{
		db:   db,
		obj:  obj,
		proc: proc,
		log:  log,
		jobs: make(chan string, 64),
	}
}

// Start launches the worker goroutines. They drain the jobs channel until
// the context is cancelled.
func (i *Ingestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.log.Info("ingest worker shutting down", zap.Int("worker", w))
					return
				case bookID := <-i.jobs:
					i.runJob(ctx, bookID)
				}
			}
		}(w)
	}
}

// Enqueue schedules a book for background processing. Blocks if the queue is
// full.
func (i *Ingestor) Enqueue(bookID string) {
	i.jobs <- bookID
}

// runJob loads the book, fetches its bytes from object storage and runs the
// pipeline. The deferred path never forces: a book that already has chunks is
// left alone.
func (i *Ingestor) runJob(ctx context.Context, bookID string) {
	procCtx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	book, err := i.db.GetBookByID(procCtx, bookID)
	if err != nil {
		i.log.Error("ingest job: load book", zap.String("book_id", bookID), zap.Error(err))
		return
	}

	bucket, key := objectstore.ParseURL(book.StorageURL)
	data, err := i.obj.GetFile(procCtx, bucket, key)
	if err != nil {
		i.log.Error("ingest job: fetch file", zap.String("book_id", bookID), zap.Error(err))
		if uerr := i.db.UpdateBookStatus(procCtx, bookID, models.StatusFailed, "storage_unavailable", book.ChunkCount); uerr != nil {
			i.log.Error("ingest job: record failure", zap.String("book_id", bookID), zap.Error(uerr))
		}
		return
	}

	res, err := i.proc.Process(procCtx, book, data, false)
	if err != nil {
		// Already recorded on the book row by the processor.
		return
	}
	if res.AlreadyProcessed {
		i.log.Info("ingest job: already processed", zap.String("book_id", bookID))
	}
}
