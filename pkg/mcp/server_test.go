package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rmax-ai/clustergraph/pkg/graph"
)

func testGraph() *graph.Graph {
	g := graph.NewGraph()
	g.ClusterID = "c1"
	g.AddNode(&graph.Node{ID: "g1", Type: graph.NodeGroup})
	g.AddNode(&graph.Node{ID: "ip", Type: graph.NodePrimitive, Parent: "g1", Position: 0,
		Properties: map[string]string{"agent": "ocf:heartbeat:IPaddr2"}})
	g.AddNode(&graph.Node{ID: "fs", Type: graph.NodePrimitive, Parent: "g1", Position: 1,
		Properties: map[string]string{"agent": "ocf:heartbeat:Filesystem", "storage_dependency": "drbd0"}})
	g.AddEdge(&graph.Edge{ConstraintID: "o1", FromID: "drbd0", ToID: "fs", Type: graph.EdgeOrder})
	return g
}

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/graph", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(testGraph())
	})
	mux.HandleFunc("/v1/passes", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"pass_id": "p1", "created": 3}]`))
	})
	mux.HandleFunc("/v1/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pass_id": "p2", "created": ["r1"], "storage_dependencies": {"fs": "drbd0"}}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestMCPServer_ReadGraph(t *testing.T) {
	s := NewServer(newTestAPI(t).URL)

	req := mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: "clustergraph://graph",
		},
	}
	result, err := s.handleReadGraph(context.Background(), req)
	if err != nil {
		t.Fatalf("handleReadGraph failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 resource content, got %d", len(result))
	}
	content, ok := result[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("Expected TextResourceContents")
	}
	if content.MIMEType != "application/json" {
		t.Errorf("Expected application/json, got %s", content.MIMEType)
	}

	var g graph.Graph
	if err := json.Unmarshal([]byte(content.Text), &g); err != nil {
		t.Fatalf("Failed to parse result JSON: %v", err)
	}
	if len(g.Nodes) != 3 {
		t.Errorf("Expected 3 nodes, got %d", len(g.Nodes))
	}
}

func TestMCPServer_ReadPasses(t *testing.T) {
	s := NewServer(newTestAPI(t).URL)

	req := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: "clustergraph://passes"}}
	result, err := s.handleReadPasses(context.Background(), req)
	if err != nil {
		t.Fatalf("handleReadPasses failed: %v", err)
	}
	content := result[0].(mcp.TextResourceContents)
	if !strings.Contains(content.Text, `"p1"`) {
		t.Errorf("Expected pass p1 in %s", content.Text)
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("Expected content in result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func TestMCPServer_Refresh(t *testing.T) {
	s := NewServer(newTestAPI(t).URL)

	result, err := s.handleRefresh(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: "refresh_topology"},
	})
	if err != nil {
		t.Fatalf("handleRefresh failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error")
	}
	text := toolText(t, result)
	for _, want := range []string{"Pass p2", "Created: r1", "fs depends on drbd0"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in %q", want, text)
		}
	}
}

func TestMCPServer_DescribeResource(t *testing.T) {
	s := NewServer(newTestAPI(t).URL)

	call := func(id string) *mcp.CallToolResult {
		result, err := s.handleDescribeResource(context.Background(), mcp.CallToolRequest{
			Params: mcp.CallToolParams{
				Name:      "describe_resource",
				Arguments: map[string]any{"resource_id": id},
			},
		})
		if err != nil {
			t.Fatalf("handleDescribeResource failed: %v", err)
		}
		return result
	}

	text := toolText(t, call("fs"))
	for _, want := range []string{"fs (primitive)", "Parent: g1 (position 1)", "Storage dependency: drbd0", "order o1: <- drbd0"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in %q", want, text)
		}
	}

	if text := toolText(t, call("g1")); !strings.Contains(text, "Members: ip, fs") {
		t.Errorf("Expected ordered members in %q", text)
	}

	if result := call("missing"); !result.IsError {
		t.Error("Expected an error for an unknown resource")
	}
}

func TestMCPServer_Prompt(t *testing.T) {
	s := NewServer("http://127.0.0.1:0")
	req := mcp.GetPromptRequest{}
	req.Params.Name = "clustergraph-aware"
	result, err := s.handleGetPrompt(context.Background(), req)
	if err != nil {
		t.Fatalf("handleGetPrompt failed: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Errorf("Expected one message, got %d", len(result.Messages))
	}

	req.Params.Name = "other"
	if _, err := s.handleGetPrompt(context.Background(), req); err == nil {
		t.Error("Expected unknown prompt to fail")
	}
}
