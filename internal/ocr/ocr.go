// Package ocr converts a document file into an ordered sequence of per-page
// recognized text. The actual recognition is delegated to a backend provider.
package ocr

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnsupportedMediaType marks a file whose type the adapter does not
// handle. It is raised from the extension gate, before any network call.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// ErrExtractionService marks a whole-document failure of the recognition
// backend. Page-level failures inside a multi-page document are absorbed
// with a skip instead.
var ErrExtractionService = errors.New("text extraction service error")

// Page is one page of recognized text, 1-based and in page order.
type Page struct {
	Number int
	Text   string
}

// Extractor extracts per-page text from a document file.
type Extractor interface {
	ExtractPages(ctx context.Context, path string) ([]Page, error)
}

// MediaTypeForFile maps a file's extension to its media type. PDFs and
// still images (JPEG/PNG) are supported; anything else fails with
// ErrUnsupportedMediaType.
func MediaTypeForFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".png":
		return "image/png", nil
	default:
		return "", eris.Wrapf(ErrUnsupportedMediaType, "ocr: %q", filepath.Ext(path))
	}
}

// Config configures PDF and image text extraction.
type Config struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	TesseractPath string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg Config) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocal(cfg.PdfToTextPath, cfg.TesseractPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
