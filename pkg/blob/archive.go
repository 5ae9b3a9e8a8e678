package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/graph"
)

// GraphArchive keeps the last few reconciled graphs of every cluster as JSON blobs under
// "<cluster>/<timestamp>-v<version>.json".
type GraphArchive struct {
	store  BlobStore
	keep   int
	now    func() time.Time
	logger *slog.Logger
}

// NewGraphArchive archives into store and keeps the newest keep graphs per cluster. keep <= 0
// keeps everything.
func NewGraphArchive(store BlobStore, keep int) *GraphArchive {
	return &GraphArchive{
		store:  store,
		keep:   keep,
		now:    time.Now,
		logger: slog.Default().With("component", "graph_archive"),
	}
}

// Publish writes g and drops the oldest archived graphs beyond the retention count.
func (a *GraphArchive) Publish(ctx context.Context, g *graph.Graph) error {
	if g.ClusterID == "" {
		return fmt.Errorf("cannot archive a graph without cluster id")
	}
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	key := path.Join(g.ClusterID, fmt.Sprintf("%s-v%d.json", a.now().UTC().Format("20060102T150405.000000000Z"), g.Version))
	if err := a.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to archive graph: %w", err)
	}
	return a.trim(ctx, g.ClusterID)
}

func (a *GraphArchive) trim(ctx context.Context, clusterID string) error {
	if a.keep <= 0 {
		return nil
	}
	keys, err := a.store.List(ctx, clusterID)
	if err != nil {
		return fmt.Errorf("failed to list archive: %w", err)
	}
	for _, key := range keys[:max(len(keys)-a.keep, 0)] {
		if err := a.store.Delete(ctx, key); err != nil {
			a.logger.Warn("Failed to drop archived graph", "key", key, "error", err)
		}
	}
	return nil
}

// Keys lists the archived graphs of a cluster, oldest first.
func (a *GraphArchive) Keys(ctx context.Context, clusterID string) ([]string, error) {
	return a.store.List(ctx, clusterID)
}

// Load reads one archived graph.
func (a *GraphArchive) Load(ctx context.Context, key string) (*graph.Graph, error) {
	rc, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var g graph.Graph
	if err := json.NewDecoder(rc).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &g, nil
}

// Latest returns the newest archived graph of a cluster.
func (a *GraphArchive) Latest(ctx context.Context, clusterID string) (*graph.Graph, error) {
	keys, err := a.Keys(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no archived graph for %s", ErrNotFound, clusterID)
	}
	return a.Load(ctx, keys[len(keys)-1])
}
