package chunker

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/readstack-hq/readstack/internal/models"
)

const defaultMaxChunkRunes = 2000

var sentenceRe = regexp.MustCompile(`(?m)(?U)[^.!?]+[.!?]+`)

// Splitter cuts extracted segments into retrieval-sized chunks. Boundaries
// prefer sentence ends nearest the size limit; a chunk never spans two
// segments, so every chunk carries exactly the title of the segment it was
// cut from. Indices are assigned densely from 0 in reading order.
type Splitter struct {
	maxChunkRunes int
	enc           *tiktoken.Tiktoken
}

func New(maxChunkRunes int) *Splitter {
	if maxChunkRunes <= 0 {
		maxChunkRunes = defaultMaxChunkRunes
	}
	// Best effort: the encoding download can fail offline, in which case we
	// fall back to a chars/4 estimate.
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Splitter{maxChunkRunes: maxChunkRunes, enc: enc}
}

// Split produces the ordered chunk sequence for a book. Segments that are
// empty after trimming contribute nothing; if every segment is empty the
// result is an empty slice, which the orchestrator treats as an extraction
// failure rather than a valid empty book.
func (s *Splitter) Split(bookID string, segments []models.Segment) []models.Chunk {
	var chunks []models.Chunk
	idx := 0

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		for _, piece := range s.splitText(text) {
			chunks = append(chunks, models.Chunk{
				ID:           uuid.NewString(),
				BookID:       bookID,
				ChunkIndex:   idx,
				TextContent:  piece,
				ChapterTitle: seg.Title,
				TokenCount:   s.countTokens(piece),
			})
			idx++
		}
	}
	return chunks
}

// splitText cuts one segment's text into pieces of at most maxChunkRunes,
// accumulating whole sentences until the budget is reached.
func (s *Splitter) splitText(text string) []string {
	if len([]rune(text)) <= s.maxChunkRunes {
		return []string{text}
	}

	var pieces []string
	var buf strings.Builder
	bufRunes := 0

	flush := func() {
		if t := strings.TrimSpace(buf.String()); t != "" {
			pieces = append(pieces, t)
		}
		buf.Reset()
		bufRunes = 0
	}

	for _, sentence := range splitSentences(text) {
		n := len([]rune(sentence))
		if bufRunes > 0 && bufRunes+n+1 > s.maxChunkRunes {
			flush()
		}
		if n > s.maxChunkRunes {
			// Pathological sentence longer than a whole chunk: hard split.
			flush()
			for _, part := range hardSplit(sentence, s.maxChunkRunes) {
				pieces = append(pieces, part)
			}
			continue
		}
		if bufRunes > 0 {
			buf.WriteByte(' ')
			bufRunes++
		}
		buf.WriteString(sentence)
		bufRunes += n
	}
	flush()

	return pieces
}

// splitSentences returns trimmed sentences including any tail without a
// terminal punctuation mark.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if sent := strings.TrimSpace(text[last:loc[1]]); sent != "" {
			out = append(out, sent)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// hardSplit slices text into rune windows of at most size.
func hardSplit(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		if part := strings.TrimSpace(string(runes[i:end])); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Splitter) countTokens(text string) int {
	if s.enc != nil {
		return len(s.enc.Encode(text, nil, nil))
	}
	return approxTokens(text)
}

// approxTokens is a cheap token estimator (~4 chars per token).
func approxTokens(text string) int {
	n := len([]rune(text))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
