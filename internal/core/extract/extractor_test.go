package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/models"
)

func TestExtractUnsupportedFormat(t *testing.T) {
	e := New()
	for _, mt := range []string{"text/plain", "application/msword", "", "image/png"} {
		_, err := e.Extract(context.Background(), []byte("hello"), mt)
		assert.ErrorIs(t, err, core.ErrUnsupportedFormat, "media type %q", mt)
	}
}

func TestExtractCorruptPDF(t *testing.T) {
	e := New()
	_, err := e.Extract(context.Background(), []byte("not a pdf at all"), models.MediaTypePDF)
	assert.ErrorIs(t, err, core.ErrCorruptFile)
}

func TestExtractEmptyEPUBIsEmptyDocument(t *testing.T) {
	data := buildZip(t, []zipEntry{
		{"META-INF/container.xml", testContainerXML},
		{"OEBPS/content.opf", testOPF},
		{"OEBPS/ch1.xhtml", `<html><body><p>   </p></body></html>`},
	})

	e := New()
	_, err := e.Extract(context.Background(), data, models.MediaTypeEPUB)
	assert.ErrorIs(t, err, core.ErrEmptyDocument)
}

func TestNormalizeMediaType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"application/pdf", "application/pdf"},
		{"application/pdf; charset=binary", "application/pdf"},
		{"APPLICATION/EPUB+ZIP", "application/epub+zip"},
		{"  application/pdf  ", "application/pdf"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeMediaType(tt.in), "input %q", tt.in)
	}
}
