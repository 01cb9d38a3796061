package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/models"
)

// EPUB is a zip container: META-INF/container.xml points at the OPF package
// document, whose spine lists the reading-order sections. Titles come from
// the NCX table of contents when present; a spine item without a TOC entry
// stays untitled rather than failing extraction.

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Manifest struct {
		Items []epubManifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type epubManifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type ncxDoc struct {
	NavPoints []ncxNavPoint `xml:"navMap>navPoint"`
}

type ncxNavPoint struct {
	Label   string        `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

func extractEPUB(data []byte) ([]models.Segment, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptFile, err)
	}

	opfPath, err := rootfilePath(zr)
	if err != nil {
		return nil, err
	}

	var pkg epubPackage
	if err := unmarshalZipFile(zr, opfPath, &pkg); err != nil {
		return nil, fmt.Errorf("%w: package document: %v", core.ErrCorruptFile, err)
	}

	opfDir := path.Dir(opfPath)
	itemsByID := make(map[string]epubManifestItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		itemsByID[item.ID] = item
	}

	titles := tocTitles(zr, opfDir, pkg.Manifest.Items)

	var segments []models.Segment
	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := itemsByID[ref.IDRef]
		if !ok {
			continue
		}
		href := resolveHref(opfDir, item.Href)
		raw, err := readZipFile(zr, href)
		if err != nil {
			// A spine entry pointing at a missing file is tolerated; the
			// remaining sections still span the readable content.
			continue
		}
		segments = append(segments, models.Segment{
			Title: titles[href],
			Text:  stripMarkup(string(raw)),
		})
	}
	return segments, nil
}

// rootfilePath locates the OPF package document via META-INF/container.xml.
func rootfilePath(zr *zip.Reader) (string, error) {
	var c epubContainer
	if err := unmarshalZipFile(zr, "META-INF/container.xml", &c); err != nil {
		return "", fmt.Errorf("%w: container.xml: %v", core.ErrCorruptFile, err)
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return "", fmt.Errorf("%w: container.xml has no rootfile", core.ErrCorruptFile)
	}
	return c.Rootfiles[0].FullPath, nil
}

// tocTitles maps resolved section hrefs to their NCX table-of-contents
// labels. Missing or unparsable NCX yields an empty map, never an error.
func tocTitles(zr *zip.Reader, opfDir string, items []epubManifestItem) map[string]string {
	titles := make(map[string]string)

	var ncxHref string
	for _, item := range items {
		if item.MediaType == "application/x-dtbncx+xml" || strings.HasSuffix(item.Href, ".ncx") {
			ncxHref = resolveHref(opfDir, item.Href)
			break
		}
	}
	if ncxHref == "" {
		return titles
	}

	var ncx ncxDoc
	if err := unmarshalZipFile(zr, ncxHref, &ncx); err != nil {
		return titles
	}

	var walk func(points []ncxNavPoint)
	walk = func(points []ncxNavPoint) {
		for _, p := range points {
			src := resolveHref(opfDir, stripFragment(p.Content.Src))
			label := strings.TrimSpace(p.Label)
			if src != "" && label != "" {
				if _, seen := titles[src]; !seen {
					titles[src] = label
				}
			}
			walk(p.Children)
		}
	}
	walk(ncx.NavPoints)
	return titles
}

func resolveHref(opfDir, href string) string {
	href = stripFragment(href)
	if href == "" {
		return ""
	}
	if opfDir == "." || opfDir == "" {
		return href
	}
	return path.Join(opfDir, href)
}

func stripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("file %q not in archive", name)
}

func unmarshalZipFile(zr *zip.Reader, name string, v any) error {
	raw, err := readZipFile(zr, name)
	if err != nil {
		return err
	}
	return xml.Unmarshal(raw, v)
}

var (
	headBlockRe = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	blockEndRe  = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|section|blockquote|tr)>|<br\s*/?>`)
	tagRe       = regexp.MustCompile(`(?s)<[^>]*>`)
	multiWSRe   = regexp.MustCompile(`[ \t]+`)
	multiNLRe   = regexp.MustCompile(`\n{3,}`)
)

// stripMarkup converts a section's XHTML to plain text, keeping paragraph
// breaks as newlines.
func stripMarkup(s string) string {
	s = headBlockRe.ReplaceAllString(s, "")
	s = blockEndRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = multiWSRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = multiNLRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
