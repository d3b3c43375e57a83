// Package extract converts uploaded document bytes into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// ErrUnsupportedFormat is returned by ExtractDetailed for extensions outside the supported set.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ExtractionError reports a file whose bytes could not be turned into text.
type ExtractionError struct {
	Filename string
	Format   string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Filename, e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

var supportedExtensions = []string{".pdf", ".docx", ".csv", ".txt", ".png", ".jpg", ".jpeg", ".tiff"}

// SupportedExtensions returns the extensions (with leading dot) the extractor understands.
func SupportedExtensions() []string {
	return slices.Clone(supportedExtensions)
}

// Supported reports whether filename has a supported extension.
func Supported(filename string) bool {
	return slices.Contains(supportedExtensions, strings.ToLower(filepath.Ext(filename)))
}

// Extractor extracts plain text from document bytes, dispatching on the filename extension.
type Extractor struct {
	ocr    OCR
	logger *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets the logger used for extraction warnings.
func WithLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// WithOCR sets the OCR engine used for image files.
func WithOCR(ocr OCR) ExtractorOption {
	return func(e *Extractor) { e.ocr = ocr }
}

// NewExtractor returns an Extractor. Without WithOCR, images are read with the tesseract binary.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		ocr:    NewTesseractOCR("", 0),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the text of content, or "" when the format is unsupported or extraction fails.
// Failures are logged as warnings; they never abort the caller.
func (e *Extractor) Extract(ctx context.Context, content []byte, filename string) string {
	text, err := e.ExtractDetailed(ctx, content, filename)
	if err != nil {
		e.logger.Warn("extraction failed, skipping file", zap.String("filename", filename), zap.Error(err))
		return ""
	}
	return text
}

// ExtractDetailed is Extract with the failure reason returned instead of logged.
// Errors are *ExtractionError values.
func (e *Extractor) ExtractDetailed(ctx context.Context, content []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".csv":
		text, err = extractCSV(content)
	case ".txt":
		text = extractPlain(content)
	case ".png", ".jpg", ".jpeg", ".tiff":
		text, err = e.extractImage(ctx, content)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return "", &ExtractionError{Filename: filename, Format: strings.TrimPrefix(ext, "."), Err: err}
	}
	return text, nil
}
