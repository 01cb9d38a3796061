package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack-hq/readstack/internal/models"
)

func TestSplitAssignsDenseIndices(t *testing.T) {
	s := New(50)
	segments := []models.Segment{
		{Title: "Chapter 1", Text: strings.Repeat("A short sentence. ", 20)},
		{Title: "", Text: "   "},
		{Title: "Chapter 2", Text: strings.Repeat("Another line here. ", 20)},
	}

	chunks := s.Split("book-1", segments)
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, "book-1", ch.BookID)
		assert.NotEmpty(t, ch.ID)
		assert.NotEmpty(t, strings.TrimSpace(ch.TextContent))
		assert.Greater(t, ch.TokenCount, 0)
	}
}

func TestSplitChunkNeverSpansSegments(t *testing.T) {
	s := New(5000)
	segments := []models.Segment{
		{Title: "One", Text: "First chapter body."},
		{Title: "Two", Text: "Second chapter body."},
	}

	chunks := s.Split("b", segments)
	require.Len(t, chunks, 2)
	assert.Equal(t, "One", chunks[0].ChapterTitle)
	assert.Equal(t, "Two", chunks[1].ChapterTitle)
	assert.Equal(t, "First chapter body.", chunks[0].TextContent)
	assert.Equal(t, "Second chapter body.", chunks[1].TextContent)
}

func TestSplitRespectsRuneBudget(t *testing.T) {
	s := New(100)
	text := strings.Repeat("This sentence is roughly forty characters. ", 30)

	chunks := s.Split("b", []models.Segment{{Title: "c", Text: text}})
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.TextContent)), 100)
	}
}

func TestSplitHardSplitsOversizedSentence(t *testing.T) {
	s := New(40)
	// No sentence punctuation at all, far over the budget.
	text := strings.Repeat("x", 130)

	chunks := s.Split("b", []models.Segment{{Text: text}})
	require.Len(t, chunks, 4)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.TextContent)), 40)
	}
}

func TestSplitAllEmptySegments(t *testing.T) {
	s := New(0)
	chunks := s.Split("b", []models.Segment{{Text: ""}, {Text: "\n\t "}})
	assert.Empty(t, chunks)
}

func TestSplitSentencesKeepsUnterminatedTail(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "terminated sentences",
			text: "One. Two! Three?",
			want: []string{"One.", "Two!", "Three?"},
		},
		{
			name: "tail without punctuation",
			text: "Complete sentence. dangling tail",
			want: []string{"Complete sentence.", "dangling tail"},
		},
		{
			name: "no punctuation at all",
			text: "just words here",
			want: []string{"just words here"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSentences(tt.text))
		})
	}
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, approxTokens(""))
	assert.Equal(t, 1, approxTokens("ab"))
	assert.Equal(t, 2, approxTokens("eightchr"))
}
