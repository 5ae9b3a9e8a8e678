package reports

import (
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rmax-ai/clustergraph/pkg/store"
)

type mockReportStore struct {
	passes []*store.PassRecord // newest first, as the store returns them
	filter store.PassFilter
	err    error
}

func (m *mockReportStore) RecentPasses(ctx context.Context, filter store.PassFilter) ([]*store.PassRecord, error) {
	m.filter = filter
	if m.err != nil {
		return nil, m.err
	}
	var out []*store.PassRecord
	for _, p := range m.passes {
		if filter.ClusterID != "" && p.ClusterID != filter.ClusterID {
			continue
		}
		if !filter.Since.IsZero() && p.StartedAt.Before(filter.Since) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func samplePasses(now time.Time) []*store.PassRecord {
	return []*store.PassRecord{
		{PassID: "p4", ClusterID: "c1", StartedAt: now.Add(2 * time.Hour), Created: 9},
		{PassID: "p3", ClusterID: "c2", StartedAt: now, Created: 1, DurationMs: 30},
		{PassID: "p2", ClusterID: "c1", StartedAt: now.Add(-time.Minute), Error: "fetch failed"},
		{PassID: "p1", ClusterID: "c1", StartedAt: now.Add(-2 * time.Minute), Created: 4, Removed: 1, PlaceholdersCreated: 2, DurationMs: 12},
	}
}

func readCSV(t *testing.T, g Generator, params ReportParams) [][]string {
	t.Helper()
	reader, err := g.Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	records, err := csv.NewReader(reader).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}
	return records
}

func TestPassesReport(t *testing.T) {
	now := time.Now()
	s := &mockReportStore{passes: samplePasses(now)}

	records := readCSV(t, NewPassesReport(s), ReportParams{
		Start: now.Add(-time.Hour),
		End:   now.Add(time.Hour),
	})

	if len(records) != 4 { // Header + 3 rows
		t.Fatalf("Expected 4 records, got %d", len(records))
	}
	var ids []string
	for _, row := range records[1:] {
		ids = append(ids, row[1])
	}
	if diff := cmp.Diff([]string{"p1", "p2", "p3"}, ids); diff != "" {
		t.Errorf("Rows not oldest first (-want +got):\n%s", diff)
	}
	if records[2][12] != "fetch failed" {
		t.Errorf("Expected error column on p2, got %q", records[2][12])
	}
	if s.filter.Limit != maxRows {
		t.Errorf("Expected limit %d, got %d", maxRows, s.filter.Limit)
	}
}

func TestSummaryReport(t *testing.T) {
	now := time.Now()
	s := &mockReportStore{passes: samplePasses(now)}

	records := readCSV(t, NewSummaryReport(s), ReportParams{End: now.Add(time.Hour)})
	want := [][]string{
		{"cluster_id", "passes", "failed", "created", "removed", "placeholders_created", "unresolved", "avg_duration_ms"},
		{"c1", "2", "1", "4", "1", "2", "0", "12"},
		{"c2", "1", "0", "1", "0", "0", "0", "30"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("Summary mismatch (-want +got):\n%s", diff)
	}
}

func TestSummaryReport_ClusterFilter(t *testing.T) {
	s := &mockReportStore{passes: samplePasses(time.Now())}
	records := readCSV(t, NewSummaryReport(s), ReportParams{ClusterID: "c2"})
	if len(records) != 2 || records[1][0] != "c2" {
		t.Errorf("Expected only c2, got %v", records)
	}
}

func TestReportStoreError(t *testing.T) {
	s := &mockReportStore{err: errors.New("db locked")}
	if _, err := NewPassesReport(s).Generate(context.Background(), ReportParams{}); err == nil {
		t.Error("Expected error from passes report")
	}
	if _, err := NewSummaryReport(s).Generate(context.Background(), ReportParams{}); err == nil {
		t.Error("Expected error from summary report")
	}
}

func TestNewReportGenerator(t *testing.T) {
	s := &mockReportStore{}
	for _, rt := range []ReportType{ReportTypePasses, ReportTypeSummary} {
		if _, err := NewReportGenerator(rt, s); err != nil {
			t.Errorf("NewReportGenerator(%s) error = %v", rt, err)
		}
	}
	if _, err := NewReportGenerator("usage", s); err == nil {
		t.Error("Expected error for unknown report type")
	}
}
