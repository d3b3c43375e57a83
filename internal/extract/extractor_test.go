package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Recognize(_ context.Context, _ []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestExtract_plain(t *testing.T) {
	e := NewExtractor()
	got := e.Extract(context.Background(), []byte("Hello world\nLine 2"), "notes.txt")
	if got != "Hello world\nLine 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_plainInvalidUTF8Dropped(t *testing.T) {
	e := NewExtractor()
	got := e.Extract(context.Background(), []byte("hello\x80world caf\xc3\xa9"), "a.TXT")
	if got != "helloworld café" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_plainBOMAndCRLF(t *testing.T) {
	e := NewExtractor()
	got := e.Extract(context.Background(), []byte("\xef\xbb\xbfone\r\ntwo\r\n"), "dos.txt")
	if got != "one\ntwo\n" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_unsupportedExtension(t *testing.T) {
	e := NewExtractor()
	ctx := context.Background()
	for _, name := range []string{"slides.pptx", "notes.md", "README", "sheet.xlsx"} {
		if got := e.Extract(ctx, []byte("text"), name); got != "" {
			t.Errorf("%s: expected empty text, got %q", name, got)
		}
		_, err := e.ExtractDetailed(ctx, []byte("text"), name)
		var extErr *ExtractionError
		if !errors.As(err, &extErr) || !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s: expected unsupported ExtractionError, got %v", name, err)
		}
	}
}

func TestExtract_corruptPDF(t *testing.T) {
	e := NewExtractor()
	if got := e.Extract(context.Background(), []byte("not a pdf"), "broken.pdf"); got != "" {
		t.Errorf("got %q", got)
	}
	_, err := e.ExtractDetailed(context.Background(), []byte("not a pdf"), "broken.pdf")
	var extErr *ExtractionError
	if !errors.As(err, &extErr) || extErr.Format != "pdf" || extErr.Filename != "broken.pdf" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestExtract_csv(t *testing.T) {
	e := NewExtractor()
	in := "\xef\xbb\xbfname,city\r\nAda,\"London\"\r\nGrace,New York,extra\r\n"
	got := e.Extract(context.Background(), []byte(in), "people.csv")
	want := "name,city\nAda,London\nGrace,New York,extra\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSupported(t *testing.T) {
	tests := map[string]bool{
		"a.pdf": true, "b.DOCX": true, "c.csv": true, "d.txt": true,
		"e.png": true, "f.jpg": true, "g.jpeg": true, "h.tiff": true,
		"i.tif": false, "j.md": false, "k": false,
	}
	for name, want := range tests {
		if got := Supported(name); got != want {
			t.Errorf("Supported(%q) = %v, want %v", name, got, want)
		}
	}
	if len(SupportedExtensions()) != 8 {
		t.Errorf("SupportedExtensions() = %v", SupportedExtensions())
	}
}

// minimalDocx returns a minimal .docx zip with word/document.xml holding one paragraph per entry.
func minimalDocx(paragraphs ...string) []byte {
	var body string
	for _, p := range paragraphs {
		body += `<w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

// minimalDocxWithContentTypes returns a .docx zip with [Content_Types].xml pointing to a custom document path.
func minimalDocxWithContentTypes(text, docPath string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	ct, _ := w.Create("[Content_Types].xml")
	_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override PartName="/` + docPath + `" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`))
	fw, _ := w.Create(docPath)
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtract_docxParagraphs(t *testing.T) {
	e := NewExtractor()
	got := e.Extract(context.Background(), minimalDocx("First paragraph.", "Fish &amp; chips"), "report.docx")
	if got != "First paragraph.\nFish & chips" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_docxRunsAndTabs(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>Hel</w:t></w:r><w:r><w:t>lo</w:t><w:tab/><w:t>there</w:t></w:r></w:p><w:tbl/></w:body></w:document>`))
	_ = w.Close()

	e := NewExtractor()
	got := e.Extract(context.Background(), buf.Bytes(), "runs.docx")
	if got != "Hello\tthere" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_docxWithDocument2(t *testing.T) {
	e := NewExtractor()
	got := e.Extract(context.Background(), minimalDocxWithContentTypes("Content from document2", "word/document2.xml"), "x.docx")
	if got != "Content from document2" {
		t.Errorf("got %q", got)
	}
}

func TestDocxBodyPart_attributeOrder(t *testing.T) {
	types := `<Types><Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
		`<Override ContentType="` + docxBodyType + `" PartName="/word/main.xml"/></Types>`
	if got := docxBodyPart(types); got != "word/main.xml" {
		t.Errorf("got %q", got)
	}
	if got := docxBodyPart("<Types/>"); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_docxNotZip(t *testing.T) {
	e := NewExtractor()
	_, err := e.ExtractDetailed(context.Background(), []byte("plain"), "fake.docx")
	if err == nil {
		t.Fatal("expected error for non-zip docx")
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtract_imageUsesOCR(t *testing.T) {
	ocr := &fakeOCR{text: "  scanned invoice total 42\n"}
	e := NewExtractor(WithOCR(ocr))
	got := e.Extract(context.Background(), pngBytes(t), "scan.PNG")
	if got != "scanned invoice total 42" {
		t.Errorf("got %q", got)
	}
	if ocr.calls != 1 {
		t.Errorf("OCR called %d times", ocr.calls)
	}
}

func TestExtract_imageInvalidSkipsOCR(t *testing.T) {
	ocr := &fakeOCR{text: "never"}
	e := NewExtractor(WithOCR(ocr))
	if got := e.Extract(context.Background(), []byte("not an image"), "photo.jpg"); got != "" {
		t.Errorf("got %q", got)
	}
	if ocr.calls != 0 {
		t.Errorf("OCR should not run on undecodable image")
	}
}

func TestExtract_imageOCRFailure(t *testing.T) {
	e := NewExtractor(WithOCR(&fakeOCR{err: errors.New("engine crashed")}))
	_, err := e.ExtractDetailed(context.Background(), pngBytes(t), "scan.png")
	var extErr *ExtractionError
	if !errors.As(err, &extErr) || extErr.Format != "png" {
		t.Errorf("expected png ExtractionError, got %v", err)
	}
}

func TestTesseractOCR_missingBinary(t *testing.T) {
	ocr := NewTesseractOCR("kotae-no-such-ocr-binary", 0)
	if _, err := ocr.Recognize(context.Background(), pngBytes(t)); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
