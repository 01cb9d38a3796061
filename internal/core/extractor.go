package core

import (
	"context"

	"github.com/readstack-hq/readstack/internal/models"
)

// DocumentExtractor converts raw file bytes plus a declared media type into
// the ordered segment sequence spanning the document's readable content.
// Extraction is pure: no side effects beyond reading the input bytes.
//
// Errors: ErrUnsupportedFormat for media types outside the supported set,
// ErrCorruptFile when the container cannot be opened, ErrEmptyDocument when
// no text can be extracted. Missing optional metadata (e.g. chapter titles)
// never fails extraction on its own.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, mediaType string) ([]models.Segment, error)
}
