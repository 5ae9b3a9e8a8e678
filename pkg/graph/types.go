package graph

import (
	"slices"
	"strings"
)

// NodeType represents the kind of resource a node stands for.
type NodeType string

const (
	NodePrimitive   NodeType = "primitive"
	NodeGroup       NodeType = "group"
	NodeClone       NodeType = "clone"
	NodePlaceholder NodeType = "placeholder"
)

// EdgeType represents the constraint an edge draws.
type EdgeType string

const (
	EdgeOrder      EdgeType = "order"      // First -> Then
	EdgeColocation EdgeType = "colocation" // Rsc -> WithRsc
)

// Node represents a vertex in the topology graph.
type Node struct {
	ID         string            `json:"id"`
	Type       NodeType          `json:"type"`
	Label      string            `json:"label"`
	Parent     string            `json:"parent,omitempty"`
	Position   int               `json:"position"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Edge represents a directed constraint between two nodes.
type Edge struct {
	ConstraintID string   `json:"constraint_id"`
	FromID       string   `json:"from_id"`
	ToID         string   `json:"to_id"`
	Type         EdgeType `json:"type"`
}

// Key identifies an edge; redrawing the same edge does not duplicate it.
func (e *Edge) Key() string {
	return strings.Join([]string{string(e.Type), e.ConstraintID, e.FromID, e.ToID}, "\x00")
}

// Graph represents a snapshot of the reconciled topology.
type Graph struct {
	ClusterID string           `json:"cluster_id"`
	Version   uint64           `json:"version"`
	Nodes     map[string]*Node `json:"nodes"`
	Edges     []*Edge          `json:"edges"`
}

// NewGraph creates an empty topology graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(e *Edge) {
	g.Edges = append(g.Edges, e)
}

// Children returns the nodes whose parent is id, ordered by position. An empty id lists the
// top level.
func (g *Graph) Children(id string) []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Parent == id && n.Type != NodePlaceholder {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *Node) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// EdgesOf returns the edges that start or end at id.
func (g *Graph) EdgesOf(id string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.FromID == id || e.ToID == id {
			out = append(out, e)
		}
	}
	return out
}

// Walk visits the resource tree depth first, parents before their members. Placeholders are
// not part of the tree.
func (g *Graph) Walk(fn func(n *Node, depth int)) {
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		for _, n := range g.Children(id) {
			fn(n, depth)
			visit(n.ID, depth+1)
		}
	}
	visit("", 0)
}

// Placeholders returns the placeholder nodes in position order.
func (g *Graph) Placeholders() []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Type == NodePlaceholder {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *Node) int { return a.Position - b.Position })
	return out
}
