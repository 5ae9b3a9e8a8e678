package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/store"
)

func TestPruneWorker(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewStore(filepath.Join(tmpDir, "test_prune.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	for _, rec := range []*store.PassRecord{
		{PassID: "old-1", ClusterID: "c1", Mode: "live", StartedAt: now.Add(-72 * time.Hour)},
		{PassID: "old-2", ClusterID: "c1", Mode: "live", StartedAt: now.Add(-50 * time.Hour)},
		{PassID: "new", ClusterID: "c1", Mode: "live", StartedAt: now},
	} {
		if err := st.RecordPass(ctx, rec); err != nil {
			t.Fatalf("failed to record pass: %v", err)
		}
	}

	worker := NewPruneWorker(st, RetentionConfig{}, nil)
	if n := worker.Prune(ctx); n != 0 {
		t.Errorf("expected disabled worker to prune nothing, got %d", n)
	}

	worker.UpdateConfig(RetentionConfig{Retention: 48 * time.Hour})
	if n := worker.Prune(ctx); n != 2 {
		t.Errorf("expected 2 passes pruned, got %d", n)
	}

	left, err := st.RecentPasses(ctx, store.PassFilter{})
	if err != nil {
		t.Fatalf("RecentPasses failed: %v", err)
	}
	if len(left) != 1 || left[0].PassID != "new" {
		t.Errorf("expected only the new pass to survive, got %+v", left)
	}
}

func TestPruneWorker_RunStopsOnCancel(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "run.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	worker := NewPruneWorker(st, RetentionConfig{Retention: time.Hour, CheckInterval: time.Millisecond}, nil)
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prune worker did not stop after cancel")
	}
}
