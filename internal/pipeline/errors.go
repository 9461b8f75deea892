package pipeline

import "github.com/rotisserie/eris"

var (
	// ErrNothingToAggregate means aggregation was requested on a session
	// that has no accumulated page records.
	ErrNothingToAggregate = eris.New("nothing to aggregate")

	// ErrAggregationFailed means the Stage-2 completion call produced no
	// usable result.
	ErrAggregationFailed = eris.New("aggregation failed")
)
