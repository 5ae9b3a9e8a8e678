package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/clustergraph/pkg/graph"
)

const clustersSet = "clustergraph:clusters"

// GraphStore publishes the latest reconciled graph of each cluster so other processes can
// serve it without running a reconciler.
type GraphStore struct {
	client *redis.Client
}

func NewGraphStore(client *redis.Client) *GraphStore {
	return &GraphStore{client: client}
}

func (s *GraphStore) makeKey(clusterID string) string {
	return fmt.Sprintf("clustergraph:graph:%s", clusterID)
}

// Publish replaces the stored graph of g.ClusterID.
func (s *GraphStore) Publish(ctx context.Context, g *graph.Graph) error {
	if g.ClusterID == "" {
		return fmt.Errorf("graph has no cluster id")
	}
	key := s.makeKey(g.ClusterID)
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, clustersSet, g.ClusterID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish graph %s: %w", key, err)
	}
	return nil
}

// Latest returns the stored graph of clusterID, or nil when none was published.
func (s *GraphStore) Latest(ctx context.Context, clusterID string) (*graph.Graph, error) {
	data, err := s.client.Get(ctx, s.makeKey(clusterID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get graph: %w", err)
	}
	var g graph.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph of %s: %w", clusterID, err)
	}
	return &g, nil
}

// All returns every published graph. Entries that fail to decode are skipped.
func (s *GraphStore) All(ctx context.Context) ([]*graph.Graph, error) {
	ids, err := s.client.SMembers(ctx, clustersSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	if len(ids) == 0 {
		return []*graph.Graph{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.makeKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch graphs: %w", err)
	}
	var graphs []*graph.Graph
	for i, val := range values {
		str, ok := val.(string)
		if !ok {
			continue
		}
		var g graph.Graph
		if err := json.Unmarshal([]byte(str), &g); err != nil {
			slog.Warn("Skipping undecodable graph", "key", keys[i], "error", err)
			continue
		}
		graphs = append(graphs, &g)
	}
	return graphs, nil
}

// Clear removes every published graph.
func (s *GraphStore) Clear(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, clustersSet).Result()
	if err != nil {
		return fmt.Errorf("failed to list clusters: %w", err)
	}
	keys := []string{clustersSet}
	for _, id := range ids {
		keys = append(keys, s.makeKey(id))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete graphs: %w", err)
	}
	return nil
}
