package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultBody  = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxBodyType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// Text runs, paragraph ends, tabs and breaks, in document order.
	docxToken = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>|</w:p>|<w:tab\s*/>|<w:br(?:\s[^>]*)?/>`)

	overrideTag  = regexp.MustCompile(`<Override\s[^>]*>`)
	partNameAttr = regexp.MustCompile(`PartName="([^"]+)"`)
	ctypeAttr    = regexp.MustCompile(`ContentType="([^"]+)"`)
)

// extractDOCX reads the body part of a .docx package. Runs are joined within a paragraph and
// paragraphs end with a newline.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip: %w", err)
	}
	body := docxDefaultBody
	if types, err := readZipPart(zr, docxContentTypes); err == nil {
		if p := docxBodyPart(types); p != "" {
			body = p
		}
	}
	xml, err := readZipPart(zr, body)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, m := range docxToken.FindAllStringSubmatch(xml, -1) {
		switch tok := m[0]; {
		case tok == "</w:p>", strings.HasPrefix(tok, "<w:br"):
			b.WriteByte('\n')
		case strings.HasPrefix(tok, "<w:tab"):
			b.WriteByte('\t')
		default:
			b.WriteString(html.UnescapeString(m[1]))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// docxBodyPart returns the part registered with the main document content type, without its
// leading slash. Attribute order inside Override varies between producers.
func docxBodyPart(contentTypes string) string {
	for _, tag := range overrideTag.FindAllString(contentTypes, -1) {
		ct := ctypeAttr.FindStringSubmatch(tag)
		if ct == nil || ct[1] != docxBodyType {
			continue
		}
		if name := partNameAttr.FindStringSubmatch(tag); name != nil {
			return strings.TrimPrefix(name[1], "/")
		}
	}
	return ""
}

func readZipPart(zr *zip.Reader, name string) (string, error) {
	f, err := zr.Open(name)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}
