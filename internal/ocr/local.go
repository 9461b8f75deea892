package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// Local extracts text with local CLI tools: pdftotext for PDFs and
// tesseract for still images. Useful for development and for text-layer
// PDFs that need no real OCR.
type Local struct {
	pdfToText string
	tesseract string
}

// NewLocal creates a Local extractor. Empty paths fall back to the binary
// names on PATH.
func NewLocal(pdfToTextPath, tesseractPath string) *Local {
	if pdfToTextPath == "" {
		pdfToTextPath = "pdftotext"
	}
	if tesseractPath == "" {
		tesseractPath = "tesseract"
	}
	return &Local{pdfToText: pdfToTextPath, tesseract: tesseractPath}
}

// ExtractPages runs the appropriate tool for the file's media type. PDFs
// yield one Page per source page (pdftotext separates pages with form
// feeds); images always yield exactly one page.
func (l *Local) ExtractPages(ctx context.Context, path string) ([]Page, error) {
	mediaType, err := MediaTypeForFile(path)
	if err != nil {
		return nil, err
	}

	if mediaType == "application/pdf" {
		return l.extractPDF(ctx, path)
	}
	return l.extractImage(ctx, path)
}

func (l *Local) extractPDF(ctx context.Context, path string) ([]Page, error) {
	cmd := exec.CommandContext(ctx, l.pdfToText, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(ErrExtractionService, "ocr: pdftotext failed for %s: %s", path, stderr.String())
	}

	// pdftotext emits \f between pages.
	var pages []Page
	for i, text := range strings.Split(stdout.String(), "\f") {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: text})
	}
	return pages, nil
}

func (l *Local) extractImage(ctx context.Context, path string) ([]Page, error) {
	cmd := exec.CommandContext(ctx, l.tesseract, path, "stdout")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(ErrExtractionService, "ocr: tesseract failed for %s: %s", path, stderr.String())
	}

	return []Page{{Number: 1, Text: stdout.String()}}, nil
}
