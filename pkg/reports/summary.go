package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
)

// SummaryReport aggregates pass history per cluster.
type SummaryReport struct {
	store ReportStore
}

func NewSummaryReport(s ReportStore) *SummaryReport {
	return &SummaryReport{store: s}
}

type clusterTotals struct {
	passes, failed           int
	created, removed         int
	placeholders, unresolved int
	durationMs               int64
}

func (r *SummaryReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	passes, err := passesIn(ctx, r.store, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}

	totals := make(map[string]*clusterTotals)
	for _, p := range passes {
		t, ok := totals[p.ClusterID]
		if !ok {
			t = &clusterTotals{}
			totals[p.ClusterID] = t
		}
		t.passes++
		if p.Error != "" {
			t.failed++
			continue
		}
		t.created += p.Created
		t.removed += p.Removed
		t.placeholders += p.PlaceholdersCreated
		t.unresolved += p.Unresolved
		t.durationMs += p.DurationMs
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	headers := []string{"cluster_id", "passes", "failed", "created", "removed", "placeholders_created", "unresolved", "avg_duration_ms"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for _, id := range slices.Sorted(maps.Keys(totals)) {
		t := totals[id]
		var avg int64
		if ok := t.passes - t.failed; ok > 0 {
			avg = t.durationMs / int64(ok)
		}
		row := []string{
			id,
			strconv.Itoa(t.passes),
			strconv.Itoa(t.failed),
			strconv.Itoa(t.created),
			strconv.Itoa(t.removed),
			strconv.Itoa(t.placeholders),
			strconv.Itoa(t.unresolved),
			strconv.FormatInt(avg, 10),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV writer: %w", err)
	}
	return buf, nil
}
