package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	middleware "github.com/readstack-hq/readstack/internal/api/middlewares"
	"github.com/readstack-hq/readstack/internal/core/retrieve"
	"github.com/readstack-hq/readstack/internal/services"
)

type SearchHandler struct {
	svc      *services.BookService
	retr     *retrieve.Retriever
	validate *validator.Validate
	log      *zap.Logger
}

func NewSearchHandler(svc *services.BookService, retr *retrieve.Retriever, log *zap.Logger) *SearchHandler {
	return &SearchHandler{
		svc:      svc,
		retr:     retr,
		validate: validator.New(),
		log:      log,
	}
}

type SearchRequest struct {
	Query         string `json:"query" validate:"required"`
	CaseSensitive bool   `json:"case_sensitive"`
	WholeWords    bool   `json:"whole_words"`
	MaxResults    int    `json:"max_results" validate:"gte=0,lte=200"`
}

// Search runs a keyword query over a book's chunks. An unprocessed book
// (no chunks yet) is a successful empty result, not an error.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req SearchRequest
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

	results, err := h.retr.Search(r.Context(), book.ID, req.Query, retrieve.SearchOptions{
		CaseSensitive: req.CaseSensitive,
		WholeWords:    req.WholeWords,
		MaxResults:    req.MaxResults,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if results == nil {
		results = []retrieve.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": results,
		"count":   len(results),
	})
}
