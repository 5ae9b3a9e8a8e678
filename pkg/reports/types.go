package reports

import (
	"context"
	"io"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/store"
)

type ReportType string

const (
	ReportTypePasses  ReportType = "passes"
	ReportTypeSummary ReportType = "summary"
)

// maxRows bounds how much pass history one report reads.
const maxRows = 10000

type ReportParams struct {
	ClusterID string
	Start     time.Time
	End       time.Time
}

// ReportStore defines the interface for data access required by reports.
type ReportStore interface {
	RecentPasses(ctx context.Context, filter store.PassFilter) ([]*store.PassRecord, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}

// passesIn returns the passes in [Start, End], oldest first.
func passesIn(ctx context.Context, s ReportStore, params ReportParams) ([]*store.PassRecord, error) {
	recs, err := s.RecentPasses(ctx, store.PassFilter{
		ClusterID: params.ClusterID,
		Since:     params.Start,
		Limit:     maxRows,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*store.PassRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		if !params.End.IsZero() && recs[i].StartedAt.After(params.End) {
			continue
		}
		out = append(out, recs[i])
	}
	return out, nil
}
