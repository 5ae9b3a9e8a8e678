package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/clustergraph/pkg/client"
	"github.com/rmax-ai/clustergraph/pkg/graph"
)

// Server adapts clustergraph-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"clustergraph",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"clustergraph://graph",
		"Cluster Topology Graph",
		mcp.WithResourceDescription("Resources, groups, clones, placeholders and the order/colocation edges between them"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadGraph)

	s.mcpServer.AddResource(mcp.NewResource(
		"clustergraph://passes",
		"Reconciliation Passes",
		mcp.WithResourceDescription("Recent reconciliation passes with their created/removed counts"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadPasses)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"refresh_topology",
		mcp.WithDescription("Reconcile the cluster topology now and report what changed."),
	), s.handleRefresh)

	s.mcpServer.AddTool(mcp.NewTool(
		"describe_resource",
		mcp.WithDescription("Describe one resource: its kind, agent, parent, members and constraints."),
		mcp.WithString("resource_id", mcp.Required(), mcp.Description("The CRM id of the resource (e.g., 'fs_data')")),
	), s.handleDescribeResource)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"clustergraph-aware",
		mcp.WithPromptDescription("Provides context about cluster topology concepts (groups, clones, resource sets, placeholders)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	g, err := s.apiClient.GetGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch graph: %w", err)
	}
	return jsonContents(request.Params.URI, g)
}

func (s *Server) handleReadPasses(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	passes, err := s.apiClient.GetPasses(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch passes: %w", err)
	}
	return jsonContents(request.Params.URI, passes)
}

func (s *Server) handleRefresh(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.apiClient.Refresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pass %s\n", res.PassID)
	writeList(&b, "Created", res.Created)
	writeList(&b, "Updated", res.Updated)
	writeList(&b, "Removed", res.Removed)
	writeList(&b, "Placeholders created", res.PlaceholdersCreated)
	writeList(&b, "Unknown agents", res.UnknownAgents)
	if res.Unresolved > 0 {
		fmt.Fprintf(&b, "Unresolved references: %d\n", res.Unresolved)
	}
	for _, fs := range slices.Sorted(maps.Keys(res.StorageDependencies)) {
		fmt.Fprintf(&b, "Storage: %s depends on %s\n", fs, res.StorageDependencies[fs])
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleDescribeResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "resource_id", "")
	if id == "" {
		return mcp.NewToolResultError("resource_id is required"), nil
	}

	g, err := s.apiClient.GetGraph(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	node, ok := g.Nodes[id]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("resource %q not found", id)), nil
	}
	return mcp.NewToolResultText(describe(g, node)), nil
}

func describe(g *graph.Graph, node *graph.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", node.ID, node.Type)
	if agent := node.Properties["agent"]; agent != "" {
		fmt.Fprintf(&b, "Agent: %s\n", agent)
	}
	if node.Parent != "" {
		fmt.Fprintf(&b, "Parent: %s (position %d)\n", node.Parent, node.Position)
	}
	if dev := node.Properties["storage_dependency"]; dev != "" {
		fmt.Fprintf(&b, "Storage dependency: %s\n", dev)
	}
	var members []string
	for _, child := range g.Children(node.ID) {
		members = append(members, child.ID)
	}
	writeList(&b, "Members", members)

	for _, e := range g.EdgesOf(node.ID) {
		if e.FromID == node.ID {
			fmt.Fprintf(&b, "%s %s: -> %s\n", e.Type, e.ConstraintID, e.ToID)
		} else {
			fmt.Fprintf(&b, "%s %s: <- %s\n", e.Type, e.ConstraintID, e.FromID)
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(ids, ", "))
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "clustergraph-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are looking at the resource topology of a Pacemaker-style HA cluster.

Concepts:
- Primitive: a single managed service (IP address, filesystem, DRBD device, daemon).
- Group: an ordered list of resources started in sequence on the same node.
- Clone: a resource or group run on several nodes; a promotable clone has a master role.
- Order edge: the source must start before the target.
- Colocation edge: the source is placed with the target.
- Placeholder: stands for a resource set; edges run from the first set into the placeholder
  and from the placeholder to the second set.
- Storage dependency: a filesystem ordered after and colocated with a DRBD device.

Use 'describe_resource' to inspect one resource and 'refresh_topology' after configuration
changes. Read clustergraph://graph for the whole picture.
`

	return mcp.NewGetPromptResult(
		"clustergraph-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
