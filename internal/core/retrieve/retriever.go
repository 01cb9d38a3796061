package retrieve

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/models"
)

const defaultMaxResults = 20

// SearchOptions control keyword matching semantics.
type SearchOptions struct {
	CaseSensitive bool
	WholeWords    bool
	MaxResults    int
}

// SearchResult is one keyword match, in chunk order (not relevance-ranked).
type SearchResult struct {
	ChunkID      string `json:"chunk_id"`
	ChunkIndex   int    `json:"chunk_index"`
	TextContent  string `json:"text_content"`
	ChapterTitle string `json:"chapter_title,omitempty"`
}

// Retriever answers read queries against a book's chunk set. Reads never
// take the ingest guard: while a reprocess is in flight they serve the
// previous set, and the store guarantees they never see a mixed one.
type Retriever struct {
	db       core.DbClient
	embedder core.EmbeddingProvider // nil: keyword-overlap ranking only
}

func New(db core.DbClient, embedder core.EmbeddingProvider) *Retriever {
	return &Retriever{db: db, embedder: embedder}
}

// Search scans a book's chunks in index order and returns at most MaxResults
// matches. An empty (trimmed) query is an input error; a book without chunks
// yields an empty result, not an error.
func (r *Retriever) Search(ctx context.Context, bookID, query string, opts SearchOptions) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.ErrInvalidQuery
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}

	chunks, err := r.db.ListChunks(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	match, err := compileMatcher(query, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidQuery, err)
	}

	results := make([]SearchResult, 0, opts.MaxResults)
	for _, ch := range chunks {
		if !match(ch.TextContent) {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:      ch.ID,
			ChunkIndex:   ch.ChunkIndex,
			TextContent:  ch.TextContent,
			ChapterTitle: ch.ChapterTitle,
		})
		if len(results) == opts.MaxResults {
			break
		}
	}
	return results, nil
}

// compileMatcher builds the per-chunk predicate for the requested case and
// word-boundary semantics.
func compileMatcher(query string, opts SearchOptions) (func(string) bool, error) {
	if opts.WholeWords {
		pattern := `\b` + regexp.QuoteMeta(query) + `\b`
		if !opts.CaseSensitive {
			pattern = `(?i)` + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		return re.MatchString, nil
	}

	if opts.CaseSensitive {
		return func(text string) bool {
			return strings.Contains(text, query)
		}, nil
	}
	lowered := strings.ToLower(query)
	return func(text string) bool {
		return strings.Contains(strings.ToLower(text), lowered)
	}, nil
}

// ContextForProgress returns the ordered prefix of chunks covering the first
// progressPercent of the book. Monotone: a larger percentage always returns
// a superset prefix of a smaller one.
func (r *Retriever) ContextForProgress(ctx context.Context, bookID string, progressPercent float64) ([]models.Chunk, error) {
	if progressPercent < 0 {
		progressPercent = 0
	}
	if progressPercent > 100 {
		progressPercent = 100
	}

	chunks, err := r.db.ListChunks(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	n := int(math.Floor(float64(len(chunks)) * progressPercent / 100))
	if n > len(chunks) {
		n = len(chunks)
	}
	return chunks[:n], nil
}

// ContextForQuestion returns up to maxChunks chunks most relevant to the
// question. With an embedding provider configured it ranks by vector
// similarity in the store; otherwise (and as fallback when no vectors exist)
// it scores keyword overlap, breaking ties by ascending chunk index.
func (r *Retriever) ContextForQuestion(ctx context.Context, bookID, question string, maxChunks int) ([]models.Chunk, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, core.ErrInvalidQuery
	}
	if maxChunks <= 0 {
		maxChunks = 5
	}

	if r.embedder != nil {
		if chunks, err := r.vectorContext(ctx, bookID, question, maxChunks); err == nil && len(chunks) > 0 {
			return chunks, nil
		}
	}
	return r.keywordContext(ctx, bookID, question, maxChunks)
}

func (r *Retriever) vectorContext(ctx context.Context, bookID, question string, maxChunks int) ([]models.Chunk, error) {
	vecs, err := r.embedder.EmbedTexts(ctx, []string{question})
	if err != nil || len(vecs) == 0 {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	return r.db.SearchChunksByEmbedding(ctx, bookID, vecs[0], maxChunks)
}

func (r *Retriever) keywordContext(ctx context.Context, bookID, question string, maxChunks int) ([]models.Chunk, error) {
	chunks, err := r.db.ListChunks(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	terms := queryTerms(question)
	if len(terms) == 0 {
		return nil, core.ErrInvalidQuery
	}

	type scored struct {
		chunk    models.Chunk
		distinct int
		hits     int
	}
	var candidates []scored
	for _, ch := range chunks {
		text := strings.ToLower(ch.TextContent)
		distinct, hits := 0, 0
		for term := range terms {
			if n := strings.Count(text, term); n > 0 {
				distinct++
				hits += n
			}
		}
		if distinct > 0 {
			candidates = append(candidates, scored{chunk: ch, distinct: distinct, hits: hits})
		}
	}

	// Rank by distinct term coverage, then frequency; chunk order is the
	// deterministic final tiebreak.
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].distinct != candidates[b].distinct {
			return candidates[a].distinct > candidates[b].distinct
		}
		if candidates[a].hits != candidates[b].hits {
			return candidates[a].hits > candidates[b].hits
		}
		return candidates[a].chunk.ChunkIndex < candidates[b].chunk.ChunkIndex
	})

	if len(candidates) > maxChunks {
		candidates = candidates[:maxChunks]
	}
	out := make([]models.Chunk, len(candidates))
	for i := range candidates {
		out[i] = candidates[i].chunk
	}
	return out, nil
}

var nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// queryTerms lowercases and tokenizes a question, dropping one-letter noise.
func queryTerms(question string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, w := range nonWordRe.Split(strings.ToLower(question), -1) {
		if len([]rune(w)) >= 2 {
			terms[w] = struct{}{}
		}
	}
	return terms
}
