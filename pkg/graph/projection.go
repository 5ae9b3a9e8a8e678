package graph

import (
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rmax-ai/clustergraph/pkg/topology"
)

// Projection maintains the in-memory topology graph of one cluster. It receives drawing
// instructions from the reconciler and serves copies of the graph to readers.
type Projection struct {
	mu      sync.RWMutex
	graph   *Graph
	edges   map[string]*Edge
	touched map[string]bool
	// children holds the ordered child ids of every parent; "" is the top level.
	children     map[string][]string
	placeholders []string
	reloads      int
}

// NewProjection creates a new empty graph projection.
func NewProjection(clusterID string) *Projection {
	g := NewGraph()
	g.ClusterID = clusterID
	return &Projection{
		graph:    g,
		edges:    make(map[string]*Edge),
		touched:  make(map[string]bool),
		children: make(map[string][]string),
	}
}

func nodeType(n topology.Node) NodeType {
	switch n.Kind() {
	case topology.KindGroup:
		return NodeGroup
	case topology.KindClone:
		return NodeClone
	case topology.KindPlaceholder:
		return NodePlaceholder
	default:
		return NodePrimitive
	}
}

// ensureNodeLocked adds or refreshes the node for n. Must be called with p.mu held.
func (p *Projection) ensureNodeLocked(n topology.Node) *Node {
	id := n.NodeID()
	node, exists := p.graph.Nodes[id]
	if !exists {
		node = &Node{
			ID:    id,
			Type:  nodeType(n),
			Label: id,
		}
		p.graph.Nodes[id] = node
	}
	node.Type = nodeType(n)

	switch v := n.(type) {
	case *topology.Placeholder:
		node.Label = v.Name()
	case *topology.Resource:
		props := make(map[string]string)
		if agent := v.Agent(); agent.Type != "" {
			props["agent"] = agent.String()
		}
		if dev := v.StorageDependency(); dev != nil {
			props["storage_dependency"] = dev.ID()
		}
		if len(props) == 0 {
			props = nil
		}
		node.Properties = props
	}
	return node
}

func (p *Projection) addEdge(t EdgeType, constraintID string, from, to topology.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ensureNodeLocked(from)
	p.ensureNodeLocked(to)
	e := &Edge{
		ConstraintID: constraintID,
		FromID:       from.NodeID(),
		ToID:         to.NodeID(),
		Type:         t,
	}
	key := e.Key()
	if _, exists := p.edges[key]; !exists {
		p.edges[key] = e
		p.graph.AddEdge(e)
	}
	p.touched[key] = true
}

// AddOrderEdge draws an order edge. Drawing an existing edge again is a no-op.
func (p *Projection) AddOrderEdge(constraintID string, from, to topology.Node) {
	p.addEdge(EdgeOrder, constraintID, from, to)
}

// AddColocationEdge draws a colocation edge. Drawing an existing edge again is a no-op.
func (p *Projection) AddColocationEdge(constraintID string, from, to topology.Node) {
	p.addEdge(EdgeColocation, constraintID, from, to)
}

// AddPlaceholder registers a placeholder node at pos among the placeholders, or last when pos
// is negative.
func (p *Projection) AddPlaceholder(ph *topology.Placeholder, pos int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ensureNodeLocked(ph)
	id := ph.NodeID()
	p.placeholders = slices.DeleteFunc(p.placeholders, func(s string) bool { return s == id })
	p.placeholders = insertAt(p.placeholders, pos, id)
	p.renumberLocked(p.placeholders)
}

// MoveNodeToPosition moves n to pos among the children of its current parent.
func (p *Projection) MoveNodeToPosition(pos int, n topology.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	node := p.ensureNodeLocked(n)
	parent := ""
	if res, ok := n.(*topology.Resource); ok {
		if owner := res.Parent(); owner != nil {
			parent = owner.ID()
		}
	}

	if old, ok := p.children[node.Parent]; ok {
		p.children[node.Parent] = slices.DeleteFunc(old, func(s string) bool { return s == node.ID })
		if node.Parent != parent {
			p.renumberLocked(p.children[node.Parent])
		}
	}
	node.Parent = parent
	p.children[parent] = insertAt(p.children[parent], pos, node.ID)
	p.renumberLocked(p.children[parent])
}

// RemoveElementsNotIn drops every node missing from present, and every edge that was not
// drawn since the previous call. Present nodes are refreshed.
func (p *Projection) RemoveElementsNotIn(present mapset.Set[topology.Node]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keep := make(map[string]bool, present.Cardinality())
	for _, n := range present.ToSlice() {
		keep[n.NodeID()] = true
		node := p.ensureNodeLocked(n)
		if res, ok := n.(*topology.Resource); ok && res.Parent() == nil && node.Parent != "" {
			p.children[node.Parent] = slices.DeleteFunc(p.children[node.Parent], func(s string) bool { return s == node.ID })
			node.Parent = ""
		}
	}

	for id := range p.graph.Nodes {
		if !keep[id] {
			delete(p.graph.Nodes, id)
			delete(p.children, id)
		}
	}
	drop := func(s string) bool { return !keep[s] }
	for parent, ids := range p.children {
		p.children[parent] = slices.DeleteFunc(ids, drop)
		p.renumberLocked(p.children[parent])
	}
	p.placeholders = slices.DeleteFunc(p.placeholders, drop)
	p.renumberLocked(p.placeholders)

	edges := p.graph.Edges[:0]
	for _, e := range p.graph.Edges {
		key := e.Key()
		if p.touched[key] && keep[e.FromID] && keep[e.ToID] {
			edges = append(edges, e)
			continue
		}
		delete(p.edges, key)
	}
	clear(p.graph.Edges[len(edges):])
	p.graph.Edges = edges
	p.touched = make(map[string]bool)
}

// ReloadNode bumps the graph version so readers refresh resource listings.
func (p *Projection) ReloadNode() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graph.Version++
	p.reloads++
}

// Reloads returns how many times ReloadNode was called.
func (p *Projection) Reloads() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reloads
}

// renumberLocked writes list positions back to the nodes. Must be called with p.mu held.
func (p *Projection) renumberLocked(ids []string) {
	for i, id := range ids {
		if node, ok := p.graph.Nodes[id]; ok {
			node.Position = i
		}
	}
}

func insertAt(ids []string, pos int, id string) []string {
	if pos < 0 || pos > len(ids) {
		pos = len(ids)
	}
	return slices.Insert(ids, pos, id)
}

// GetGraph returns a copy of the current graph.
func (p *Projection) GetGraph() *Graph {
	p.mu.RLock()
	defer p.mu.RUnlock()

	newGraph := NewGraph()
	newGraph.ClusterID = p.graph.ClusterID
	newGraph.Version = p.graph.Version
	for k, v := range p.graph.Nodes {
		n := *v
		if v.Properties != nil {
			n.Properties = make(map[string]string, len(v.Properties))
			for pk, pv := range v.Properties {
				n.Properties[pk] = pv
			}
		}
		newGraph.Nodes[k] = &n
	}
	for _, e := range p.graph.Edges {
		edge := *e
		newGraph.Edges = append(newGraph.Edges, &edge)
	}
	return newGraph
}
