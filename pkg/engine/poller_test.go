package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/graph"
	"github.com/rmax-ai/clustergraph/pkg/provider"
	"github.com/rmax-ai/clustergraph/pkg/store"
	"github.com/rmax-ai/clustergraph/pkg/topology"
)

type capturePublisher struct {
	mu     sync.Mutex
	graphs []*graph.Graph
	err    error
}

func (c *capturePublisher) Publish(ctx context.Context, g *graph.Graph) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graphs = append(c.graphs, g)
	return c.err
}

func newTestPoller(t *testing.T, src provider.Source, opts ...PollerOption) (*Poller, *graph.Projection) {
	t.Helper()
	proj := graph.NewProjection("c1")
	r := NewReconciler("c1", topology.NewRegistry(), proj)
	return NewPoller(src, r, time.Hour, opts...), proj
}

func TestPoller_Refresh(t *testing.T) {
	src := provider.NewMockSource("mock", exampleSnapshot())
	p, proj := newTestPoller(t, src)

	res, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(res.Created) != 3 {
		t.Errorf("Expected 3 created resources, got %v", res.Created)
	}
	if _, ok := proj.GetGraph().Nodes["r1"]; !ok {
		t.Error("Expected r1 in the projected graph")
	}

	last, lastErr := p.Last()
	if last != res || lastErr != nil {
		t.Errorf("Expected Last to return the pass, got %v, %v", last, lastErr)
	}
}

func TestPoller_NoSnapshot(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewStore(filepath.Join(dir, "poller.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	src := provider.NewMockSource("empty")
	p, _ := newTestPoller(t, src, WithHistory(st))

	_, err = p.Refresh(context.Background())
	if !errors.Is(err, provider.ErrNoSnapshot) {
		t.Fatalf("Expected ErrNoSnapshot, got %v", err)
	}
	passes, err := st.RecentPasses(context.Background(), store.PassFilter{ClusterID: "c1"})
	if err != nil {
		t.Fatalf("RecentPasses failed: %v", err)
	}
	if len(passes) != 0 {
		t.Errorf("Expected no recorded passes without a snapshot, got %d", len(passes))
	}
}

func TestPoller_History(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewStore(filepath.Join(dir, "poller.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	src := provider.NewMockSource("mock", exampleSnapshot())
	p, _ := newTestPoller(t, src, WithHistory(st))
	ctx := context.Background()

	res, err := p.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	src.FailNext(errors.New("cib unavailable"))
	if _, err := p.Refresh(ctx); err == nil {
		t.Fatal("Expected fetch failure")
	}
	if last, lastErr := p.Last(); last != res || lastErr == nil {
		t.Errorf("Expected Last to keep the good pass and report the error, got %v, %v", last, lastErr)
	}

	passes, err := st.RecentPasses(ctx, store.PassFilter{ClusterID: "c1"})
	if err != nil {
		t.Fatalf("RecentPasses failed: %v", err)
	}
	if len(passes) != 2 {
		t.Fatalf("Expected 2 recorded passes, got %d", len(passes))
	}
	// Newest first.
	if passes[0].Error == "" {
		t.Error("Expected the failed pass to carry its error")
	}
	if passes[1].PassID != res.PassID || passes[1].Created != 3 || passes[1].PlaceholdersCreated != 1 {
		t.Errorf("Unexpected record for the good pass: %+v", passes[1])
	}
}

func TestPoller_Publisher(t *testing.T) {
	src := provider.NewMockSource("mock", exampleSnapshot())
	pub := &capturePublisher{err: errors.New("redis down")}
	archive := &capturePublisher{}
	p, proj := newTestPoller(t, src)
	WithPublisher(pub, proj)(p)
	WithPublisher(archive, proj)(p)

	// A publish failure does not fail the pass, nor stop the other publishers.
	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(pub.graphs) != 1 || len(archive.graphs) != 1 {
		t.Fatalf("Expected one graph per publisher, got %d and %d", len(pub.graphs), len(archive.graphs))
	}
	if g := pub.graphs[0]; g.ClusterID != "c1" || len(g.Edges) != 2 {
		t.Errorf("Unexpected published graph: cluster=%s edges=%d", g.ClusterID, len(g.Edges))
	}
}

func TestPoller_LeaseGuard(t *testing.T) {
	leases := &MockLeaseStore{}
	src := provider.NewMockSource("mock", exampleSnapshot())
	p, _ := newTestPoller(t, src, WithLeaseGuard(leases, "me", time.Minute))
	ctx := context.Background()

	if _, err := p.Refresh(ctx); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("Expected ErrLeaseHeld, got %v", err)
	}
	if src.Fetches() != 0 {
		t.Errorf("Expected no fetch without the lease, got %d", src.Fetches())
	}

	leases.set(func(m *MockLeaseStore) { m.acquireResult = true })
	if _, err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	var released []string
	leases.set(func(m *MockLeaseStore) { released = append(released, m.released...) })
	if len(released) != 1 || released[0] != "reconcile:c1" {
		t.Errorf("Expected lease reconcile:c1 released once, got %v", released)
	}

	leases.set(func(m *MockLeaseStore) { m.acquireError = errors.New("boom") })
	if _, err := p.Refresh(ctx); err == nil || errors.Is(err, ErrLeaseHeld) {
		t.Errorf("Expected acquisition error, got %v", err)
	}
}

func TestPoller_ConcurrentRefreshSharesPass(t *testing.T) {
	src := provider.NewMockSource("mock", exampleSnapshot())
	src.SetLatency(100 * time.Millisecond)
	p, _ := newTestPoller(t, src)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = p.Refresh(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}
	// Callers that arrived while the first pass was fetching share its result.
	if src.Fetches() >= callers {
		t.Errorf("Expected fewer fetches than callers, got %d", src.Fetches())
	}
	created := 0
	for _, r := range results {
		created += len(r.Created)
	}
	if created == 0 {
		t.Error("Expected at least one caller to see the created resources")
	}
}

func TestPoller_CancelledCallerKeepsSharedPass(t *testing.T) {
	src := provider.NewMockSource("mock", exampleSnapshot())
	src.SetLatency(200 * time.Millisecond)
	p, _ := newTestPoller(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := p.Refresh(ctx)
		first <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for src.Fetches() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	var joined *Result
	second := make(chan error, 1)
	go func() {
		res, err := p.Refresh(context.Background())
		joined = res
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected the cancelled caller to get context.Canceled, got %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("Expected the joined caller to succeed, got %v", err)
	}
	if joined == nil || len(joined.Created) == 0 {
		t.Errorf("Expected the shared pass to create resources, got %+v", joined)
	}
	if got := src.Fetches(); got != 1 {
		t.Errorf("Expected one shared fetch, got %d", got)
	}
	if last, err := p.Last(); last == nil || err != nil {
		t.Errorf("Expected the pass to be recorded, got %v, %v", last, err)
	}
}

func TestPoller_StartStops(t *testing.T) {
	src := provider.NewMockSource("mock", exampleSnapshot())
	p, _ := newTestPoller(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if last, _ := p.Last(); last != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Poller did not stop")
	}
	if last, _ := p.Last(); last == nil {
		t.Error("Expected an immediate pass on start")
	}
}

func TestPassRecord(t *testing.T) {
	if PassRecord(nil) != nil {
		t.Error("Expected nil record for nil result")
	}
	res := &Result{
		PassID:              "p1",
		ClusterID:           "c1",
		Mode:                "live",
		Duration:            1500 * time.Millisecond,
		Created:             []string{"a", "b"},
		Removed:             []string{"c"},
		PlaceholdersCreated: []string{"ph-1"},
		Unresolved:          2,
		Moves:               4,
	}
	rec := PassRecord(res)
	if rec.DurationMs != 1500 || rec.Created != 2 || rec.Removed != 1 || rec.PlaceholdersCreated != 1 {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if rec.Unresolved != 2 || rec.Moves != 4 || len(rec.Payload) == 0 {
		t.Errorf("Unexpected record: %+v", rec)
	}
}
