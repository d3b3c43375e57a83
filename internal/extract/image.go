package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os/exec"
	"strings"
	"time"

	_ "golang.org/x/image/tiff"
)

const defaultOCRTimeout = 2 * time.Minute

// OCR recognizes text in an encoded image.
type OCR interface {
	Recognize(ctx context.Context, img []byte) (string, error)
}

// TesseractOCR runs the tesseract command-line tool, feeding the image on stdin.
type TesseractOCR struct {
	binary  string
	timeout time.Duration
}

// NewTesseractOCR returns an OCR backed by the tesseract binary. An empty binary means
// "tesseract" on PATH; a non-positive timeout uses two minutes.
func NewTesseractOCR(binary string, timeout time.Duration) *TesseractOCR {
	if binary == "" {
		binary = "tesseract"
	}
	if timeout <= 0 {
		timeout = defaultOCRTimeout
	}
	return &TesseractOCR{binary: binary, timeout: timeout}
}

// Recognize returns the text tesseract reads from img.
func (t *TesseractOCR) Recognize(ctx context.Context, img []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, t.binary, "stdin", "stdout")
	cmd.Stdin = bytes.NewReader(img)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("ocr: %s not installed: %w", t.binary, err)
		}
		return "", fmt.Errorf("ocr: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// extractImage validates the image header, then runs OCR over the raw bytes.
func (e *Extractor) extractImage(ctx context.Context, content []byte) (string, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(content)); err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if e.ocr == nil {
		return "", errors.New("no OCR engine configured")
	}
	text, err := e.ocr.Recognize(ctx, content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
