package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/extract"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/prompt"
	"github.com/sells-group/billscan/internal/report"
	"github.com/sells-group/billscan/internal/session"
)

// Aggregator runs Stage 2: it drains a session's accumulated page records
// into one grouped, filtered, sorted report via a single completion call.
type Aggregator struct {
	store session.Store
	llm   *extract.Client
}

// NewAggregator creates a Stage-2 aggregator over the given session store.
func NewAggregator(store session.Store, llm *extract.Client) *Aggregator {
	return &Aggregator{store: store, llm: llm}
}

// Aggregate produces the final report for a session. The session is
// single-use: once a completion attempt has been made, the session is
// destroyed whether the attempt succeeded or failed, and a fresh session is
// required to retry. An unknown token surfaces session.ErrUnknownSession;
// an empty session surfaces ErrNothingToAggregate and is left open so it
// can still receive uploads.
func (a *Aggregator) Aggregate(ctx context.Context, token, entityFilter string) (*model.FinalReport, error) {
	// The emptiness check runs before Finalize; an empty session must not
	// end up barred from further appends.
	pages, err := a.store.ReadAll(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrNothingToAggregate
	}

	if err := a.store.Finalize(ctx, token); err != nil {
		return nil, err
	}

	// Re-read under the finalize barrier to pick up pages appended between
	// the check and the state change.
	pages, err = a.store.ReadAll(ctx, token)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := a.store.Destroy(ctx, token); err != nil {
			zap.L().Warn("session cleanup failed", zap.String("token", token), zap.Error(err))
		}
	}()

	flat := model.Flatten(pages)
	userPrompt, err := prompt.Stage2Prompt(flat, entityFilter)
	if err != nil {
		return nil, eris.Wrap(err, "stage2: render prompt")
	}

	raw, err := a.llm.Complete(ctx, "stage2", prompt.Stage2System, userPrompt, extract.Stage2Schema)
	if err != nil {
		if errors.Is(err, extract.ErrMalformedOutput) {
			return nil, eris.Wrap(ErrAggregationFailed, "stage2: malformed completion output")
		}
		return nil, eris.Wrap(ErrAggregationFailed, err.Error())
	}

	var final model.FinalReport
	if err := json.Unmarshal(raw, &final); err != nil {
		return nil, eris.Wrap(ErrAggregationFailed, "stage2: decode report")
	}

	report.Normalize(&final, entityFilter)

	zap.L().Info("session aggregated",
		zap.String("token", token),
		zap.Int("pages", len(pages)),
		zap.Int("flat_records", len(flat)),
		zap.Int("report_records", final.RecordCount()))
	return &final, nil
}
