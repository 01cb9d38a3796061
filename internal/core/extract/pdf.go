package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/models"
)

// extractPDF validates the PDF container with pdfcpu, then extracts text via
// docconv. pdftotext emits form feeds between pages, so each page becomes one
// untitled segment.
func extractPDF(ctx context.Context, data []byte) ([]models.Segment, error) {
	conf := api.LoadConfiguration()
	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptFile, err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptFile, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := docconv.Convert(bytes.NewReader(data), models.MediaTypePDF, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptFile, err)
	}

	var segments []models.Segment
	for _, page := range strings.Split(res.Body, "\f") {
		if strings.TrimSpace(page) == "" {
			continue
		}
		segments = append(segments, models.Segment{Text: page})
	}
	if len(segments) == 0 && strings.TrimSpace(res.Body) != "" {
		segments = append(segments, models.Segment{Text: res.Body})
	}
	return segments, nil
}
