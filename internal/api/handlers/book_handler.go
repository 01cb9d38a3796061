package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/readstack-hq/readstack/internal/api/middlewares"
	"github.com/readstack-hq/readstack/internal/config"
	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/core/ingest"
	"github.com/readstack-hq/readstack/internal/core/objectstore"
	"github.com/readstack-hq/readstack/internal/models"
	"github.com/readstack-hq/readstack/internal/services"
)

// BookHandler drives the ingestion triggers: deferred processing on upload
// and the synchronous, always-forced reprocess.
type BookHandler struct {
	svc      *services.BookService
	obj      core.ObjectClient
	ingestor *ingest.Ingestor
	proc     *ingest.Processor
	cfg      *config.Config
	log      *zap.Logger
}

func NewBookHandler(svc *services.BookService, obj core.ObjectClient, ingestor *ingest.Ingestor, proc *ingest.Processor, cfg *config.Config, log *zap.Logger) *BookHandler {
	return &BookHandler{svc: svc, obj: obj, ingestor: ingestor, proc: proc, cfg: cfg, log: log}
}

// UploadBook accepts the file, stores it, creates the book row and enqueues
// deferred processing. The response is an immediate acknowledgment: the
// upload contract is "file accepted", independent of the processing outcome.
func (h *BookHandler) UploadBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	maxBytes := int64(h.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		http.Error(w, "file too large or malformed form", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType != models.MediaTypePDF && contentType != models.MediaTypeEPUB {
		writeError(w, core.ErrUnsupportedFormat)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "reading upload failed", http.StatusBadRequest)
		return
	}

	book, err := h.svc.UploadAndCreate(r.Context(), userID, header.Filename, contentType, data)
	if err != nil {
		h.log.Error("upload failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, err)
		return
	}

	h.ingestor.Enqueue(book.ID)

	writeJSON(w, http.StatusAccepted, book)
}

// ReprocessBook is the synchronous trigger: it always forces a full
// re-extraction and chunk-set replacement, and waits for the outcome.
func (h *BookHandler) ReprocessBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	book, err := h.svc.GetOwned(r.Context(), chi.URLParam(r, "bookID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	bucket, key := objectstore.ParseURL(book.StorageURL)
	data, err := h.obj.GetFile(r.Context(), bucket, key)
	if err != nil {
		h.log.Error("reprocess: fetch file", zap.String("book_id", book.ID), zap.Error(err))
		writeError(w, core.ErrStorageUnavailable)
		return
	}

	res, err := h.proc.Process(r.Context(), book, data, true)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{
			"success": false,
			"reason":  ingest.Reason(err),
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"chunk_count": res.ChunkCount,
	})
}

func (h *BookHandler) GetBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	books, err := h.svc.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if books == nil {
		books = []models.Book{}
	}
	writeJSON(w, http.StatusOK, books)
}

// GetBook returns one book with its processing state, for status polling
// after an upload.
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	book, err := h.svc.GetOwned(r.Context(), chi.URLParam(r, "bookID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}
