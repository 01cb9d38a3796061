package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	middleware "github.com/readstack-hq/readstack/internal/api/middlewares"
	"github.com/readstack-hq/readstack/internal/core/retrieve"
	"github.com/readstack-hq/readstack/internal/models"
	"github.com/readstack-hq/readstack/internal/services"
)

type ContextHandler struct {
	svc      *services.BookService
	retr     *retrieve.Retriever
	validate *validator.Validate
	log      *zap.Logger
}

func NewContextHandler(svc *services.BookService, retr *retrieve.Retriever, log *zap.Logger) *ContextHandler {
	return &ContextHandler{
		svc:      svc,
		retr:     retr,
		validate: validator.New(),
		log:      log,
	}
}

type chunkPayload struct {
	ChunkIndex   int    `json:"chunk_index"`
	TextContent  string `json:"text_content"`
	ChapterTitle string `json:"chapter_title,omitempty"`
	TokenCount   int    `json:"token_count"`
}

func toChunkPayloads(chunks []models.Chunk) []chunkPayload {
	out := make([]chunkPayload, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, chunkPayload{
			ChunkIndex:   ch.ChunkIndex,
			TextContent:  ch.TextContent,
			ChapterTitle: ch.ChapterTitle,
			TokenCount:   ch.TokenCount,
		})
	}
	return out
}

// ContextForProgress returns the chunks a reader at the given progress
// percentage has already read. Progress outside 0-100 is clamped.
func (h *ContextHandler) ContextForProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	progress := 100.0
	if raw := r.URL.Query().Get("progress"); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "progress must be a number", http.StatusBadRequest)
			return
		}
		progress = p
	}

	book, err := h.svc.GetOwned(r.Context(), chi.URLParam(r, "bookID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	chunks, err := h.retr.ContextForProgress(r.Context(), book.ID, progress)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"chunks":  toChunkPayloads(chunks),
		"count":   len(chunks),
	})
}

type QuestionRequest struct {
	Question  string `json:"question" validate:"required"`
	MaxChunks int    `json:"max_chunks" validate:"gte=0,lte=50"`
}

// ContextForQuestion returns the chunks most relevant to a reader's
// question, for a caller to feed into whatever consumes them next.
func (h *ContextHandler) ContextForQuestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	book, err := h.svc.GetOwned(r.Context(), chi.URLParam(r, "bookID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	chunks, err := h.retr.ContextForQuestion(r.Context(), book.ID, req.Question, req.MaxChunks)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"chunks":  toChunkPayloads(chunks),
		"count":   len(chunks),
	})
}
