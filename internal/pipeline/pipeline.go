package pipeline

import (
	"context"

	"github.com/sells-group/billscan/internal/extract"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/ocr"
	"github.com/sells-group/billscan/internal/session"
)

// Pipeline ties the two stages to a session store. It is the unit behind
// each externally triggered operation: start a session, process one file
// into it, aggregate it.
type Pipeline struct {
	store      session.Store
	stage1     *Stage1
	aggregator *Aggregator
}

// New assembles a pipeline from its parts.
func New(store session.Store, extractor ocr.Extractor, llm *extract.Client, workers int) *Pipeline {
	return &Pipeline{
		store:      store,
		stage1:     NewStage1(extractor, llm, workers),
		aggregator: NewAggregator(store, llm),
	}
}

// CreateSession opens a fresh session and returns its token.
func (p *Pipeline) CreateSession(ctx context.Context) (string, error) {
	return p.store.Create(ctx)
}

// ProcessFile runs Stage 1 over one document and appends the accepted page
// records to the session. It returns the number of accepted pages; zero is
// a valid outcome, not an error.
func (p *Pipeline) ProcessFile(ctx context.Context, token, path string) (int, error) {
	if err := session.ValidateToken(token); err != nil {
		return 0, err
	}

	records, err := p.stage1.ProcessFile(ctx, path)
	if err != nil {
		return 0, err
	}

	// Append even when nothing was accepted: the empty append still
	// verifies the token refers to a live, open session.
	if err := p.store.Append(ctx, token, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Aggregate runs Stage 2 over the session and returns the final report.
func (p *Pipeline) Aggregate(ctx context.Context, token, entityFilter string) (*model.FinalReport, error) {
	return p.aggregator.Aggregate(ctx, token, entityFilter)
}

// ProcessOnce runs the whole pipeline over a fixed set of files without an
// externally visible session: one throwaway session, every file through
// Stage 1, then a single aggregation. Used by the one-shot command path.
func (p *Pipeline) ProcessOnce(ctx context.Context, paths []string, entityFilter string) (*model.FinalReport, error) {
	token, err := p.store.Create(ctx)
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		if _, err := p.ProcessFile(ctx, token, path); err != nil {
			return nil, err
		}
	}

	return p.Aggregate(ctx, token, entityFilter)
}
