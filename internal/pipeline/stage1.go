package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/billscan/internal/extract"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/ocr"
	"github.com/sells-group/billscan/internal/prompt"
)

// Stage1 converts one document into per-page structured records: OCR the
// document, then run one completion per page. It never touches the session
// store; the caller persists what it returns.
type Stage1 struct {
	extractor ocr.Extractor
	llm       *extract.Client
	workers   int
}

// NewStage1 creates a Stage-1 processor. workers bounds the number of
// concurrent per-page completion calls; values below 1 mean sequential.
func NewStage1(extractor ocr.Extractor, llm *extract.Client, workers int) *Stage1 {
	if workers < 1 {
		workers = 1
	}
	return &Stage1{extractor: extractor, llm: llm, workers: workers}
}

// ProcessFile runs the full Stage-1 pass over one document and returns the
// accepted page records in page order. Pages that yield no consumption
// records, or whose completion output is malformed, are skipped. The
// returned sequence may be empty.
//
// Unsupported extensions fail with ocr.ErrUnsupportedMediaType before any
// network call; a whole-document OCR failure fails with
// ocr.ErrExtractionService.
func (s *Stage1) ProcessFile(ctx context.Context, path string) ([]model.PageRecord, error) {
	if _, err := ocr.MediaTypeForFile(path); err != nil {
		return nil, err
	}
	docName := filepath.Base(path)

	pages, err := s.extractor.ExtractPages(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "stage1: extract %s", docName)
	}

	results := make([]*model.PageRecord, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, page := range pages {
		g.Go(func() error {
			rec := s.processPage(gctx, docName, page)
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "stage1: process %s", docName)
	}
	// A cancelled context makes every remaining page "fail" through the
	// skip path; surface the cancellation instead of an empty success.
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(err, "stage1: process %s", docName)
	}

	var accepted []model.PageRecord
	for _, rec := range results {
		if rec != nil {
			accepted = append(accepted, *rec)
		}
	}
	zap.L().Info("document processed",
		zap.String("document", docName),
		zap.Int("pages", len(pages)),
		zap.Int("accepted", len(accepted)))
	return accepted, nil
}

// processPage runs one completion for one page. Per-page failures are
// absorbed: a malformed or failed completion is logged and the page is
// skipped, so one bad page never voids the rest of the document.
func (s *Stage1) processPage(ctx context.Context, docName string, page ocr.Page) *model.PageRecord {
	userPrompt := prompt.Stage1Prompt(page.Text, docName, page.Number)

	raw, err := s.llm.Complete(ctx, "stage1", prompt.Stage1System, userPrompt, extract.Stage1Schema)
	if err != nil {
		zap.L().Warn("page skipped",
			zap.String("document", docName),
			zap.Int("page", page.Number),
			zap.Error(err))
		return nil
	}

	var rec model.PageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		zap.L().Warn("page skipped",
			zap.String("document", docName),
			zap.Int("page", page.Number),
			zap.Error(err))
		return nil
	}
	if rec.Empty() {
		return nil
	}

	rec.DocumentName = docName
	rec.PageNumber = page.Number
	return &rec
}
