package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// PassesReport writes one CSV row per reconciliation pass.
type PassesReport struct {
	store ReportStore
}

func NewPassesReport(s ReportStore) *PassesReport {
	return &PassesReport{store: s}
}

func (r *PassesReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{
		"started_at", "pass_id", "cluster_id", "mode", "duration_ms",
		"created", "updated", "removed", "placeholders_created", "placeholders_reused",
		"unresolved", "moves", "error",
	}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	passes, err := passesIn(ctx, r.store, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}

	for _, p := range passes {
		row := []string{
			p.StartedAt.UTC().Format(time.RFC3339),
			p.PassID,
			p.ClusterID,
			p.Mode,
			strconv.FormatInt(p.DurationMs, 10),
			strconv.Itoa(p.Created),
			strconv.Itoa(p.Updated),
			strconv.Itoa(p.Removed),
			strconv.Itoa(p.PlaceholdersCreated),
			strconv.Itoa(p.PlaceholdersReused),
			strconv.Itoa(p.Unresolved),
			strconv.Itoa(p.Moves),
			p.Error,
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
