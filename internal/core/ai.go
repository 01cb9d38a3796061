package core

import "context"

// EmbeddingProvider turns text into vectors for similarity ranking. Optional:
// when no provider is configured the pipeline persists chunks without vectors
// and question-context retrieval falls back to keyword-overlap scoring.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
