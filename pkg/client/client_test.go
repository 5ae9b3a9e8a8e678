package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/graph"
)

// noWait retries immediately.
type noWait struct{}

func (noWait) Next(int) time.Duration { return 0 }

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("Expected path /v1/health, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(Status{Status: "ok", ClusterID: "c1", Leader: true})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	status, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if status.Status != "ok" || status.ClusterID != "c1" || !status.Leader {
		t.Errorf("Ping() status = %+v", status)
	}
}

func TestClient_GetGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/graph" {
			t.Errorf("Expected path /v1/graph, got %s", r.URL.Path)
		}
		g := graph.NewGraph()
		g.ClusterID = "c1"
		g.AddNode(&graph.Node{ID: "r1", Type: graph.NodePrimitive})
		g.AddEdge(&graph.Edge{ConstraintID: "o1", FromID: "r1", ToID: "r2", Type: graph.EdgeOrder})
		json.NewEncoder(w).Encode(g)
	}))
	defer server.Close()

	g, err := NewClient(server.URL + "/").GetGraph(context.Background())
	if err != nil {
		t.Fatalf("GetGraph() error = %v", err)
	}
	if g.Nodes["r1"] == nil || len(g.Edges) != 1 || g.Edges[0].Type != graph.EdgeOrder {
		t.Errorf("Unexpected graph: %+v", g)
	}
}

func TestClient_GetPasses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("Expected default limit 50, got %q", got)
		}
		json.NewEncoder(w).Encode([]Pass{{PassID: "p2", Created: 1}, {PassID: "p1"}})
	}))
	defer server.Close()

	passes, err := NewClient(server.URL).GetPasses(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetPasses() error = %v", err)
	}
	if len(passes) != 2 || passes[0].PassID != "p2" || passes[0].Created != 1 {
		t.Errorf("Unexpected passes: %+v", passes)
	}
}

func TestClient_Refresh(t *testing.T) {
	tests := []struct {
		name      string
		busyFor   int32
		attempts  int
		wantErr   error
		wantCalls int32
	}{
		{"immediate", 0, 3, nil, 1},
		{"retries while busy", 2, 3, nil, 3},
		{"gives up", 5, 3, ErrBusy, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Expected method POST, got %s", r.Method)
				}
				n := calls.Add(1)
				if n <= tt.busyFor {
					http.Error(w, `{"error":"lease_held"}`, http.StatusConflict)
					return
				}
				json.NewEncoder(w).Encode(RefreshResult{PassID: "p1", Created: []string{"r1"}})
			}))
			defer server.Close()

			c := NewClient(server.URL).WithBackoff(noWait{}, tt.attempts)
			res, err := c.Refresh(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Refresh() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && (res.PassID != "p1" || len(res.Created) != 1) {
				t.Errorf("Unexpected result: %+v", res)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("Expected %d calls, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestClient_RefreshError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no_snapshot"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Refresh(context.Background())
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected apiError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Code != "no_snapshot" {
		t.Errorf("Unexpected error: %+v", apiErr)
	}
}

func TestClient_Report(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/reports/summary" {
			http.Error(w, `{"error":"unknown_report"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("cluster_id,passes\nc1,3\n"))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	var buf bytes.Buffer
	if err := c.Report(context.Background(), "summary", &buf); err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if buf.String() != "cluster_id,passes\nc1,3\n" {
		t.Errorf("Unexpected report %q", buf.String())
	}

	err := c.Report(context.Background(), "usage", &buf)
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Code != "unknown_report" {
		t.Errorf("Expected unknown_report, got %v", err)
	}
}
