package extract

import (
	"context"
	"mime"
	"strings"

	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/models"
)

var _ core.DocumentExtractor = (*Extractor)(nil)

// Extractor dispatches on the declared media type and produces the ordered
// segment sequence for the chunker.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, data []byte, mediaType string) ([]models.Segment, error) {
	var (
		segments []models.Segment
		err      error
	)

	switch normalizeMediaType(mediaType) {
	case models.MediaTypePDF:
		segments, err = extractPDF(ctx, data)
	case models.MediaTypeEPUB:
		segments, err = extractEPUB(data)
	default:
		return nil, core.ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}

	if !hasText(segments) {
		return nil, core.ErrEmptyDocument
	}
	return segments, nil
}

// normalizeMediaType strips parameters ("application/pdf; charset=binary")
// and lowercases the bare type.
func normalizeMediaType(mediaType string) string {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mt
}

func hasText(segments []models.Segment) bool {
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) != "" {
			return true
		}
	}
	return false
}
