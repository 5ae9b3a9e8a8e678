package topology

import (
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/rmax-ai/clustergraph/pkg/crm"
)

// Placeholder stands in for a resource set so the graph can draw N-ary constraints with binary
// edges. It is identified by pointer: its bindings change as it is reused across passes.
type Placeholder struct {
	seq int

	mu         sync.RWMutex
	isNew      bool
	order      *crm.ConstraintConnection
	colocation *crm.ConstraintConnection
	sets       *ResourceSets
}

// NewPlaceholder builds an unregistered placeholder marked new.
func NewPlaceholder() *Placeholder {
	return &Placeholder{isNew: true}
}

// Name is the registry key, empty until registered.
func (p *Placeholder) Name() string {
	if p.seq == 0 {
		return ""
	}
	return "ph-" + strconv.Itoa(p.seq)
}

func (p *Placeholder) NodeID() string { return "placeholder:" + strconv.Itoa(p.seq) }
func (p *Placeholder) Kind() Kind     { return KindPlaceholder }

func (p *Placeholder) IsNew() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isNew
}

func (p *Placeholder) SetNew(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isNew = v
}

// OrderBinding returns the order connection the placeholder currently represents.
func (p *Placeholder) OrderBinding() *crm.ConstraintConnection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.order
}

// ColocationBinding returns the colocation connection the placeholder currently represents.
func (p *Placeholder) ColocationBinding() *crm.ConstraintConnection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.colocation
}

// Binding returns the binding of the same kind as conn.
func (p *Placeholder) Binding(colocation bool) *crm.ConstraintConnection {
	if colocation {
		return p.ColocationBinding()
	}
	return p.OrderBinding()
}

// Bind stores conn in the slot matching its kind and returns the previous occupant.
func (p *Placeholder) Bind(conn *crm.ConstraintConnection) *crm.ConstraintConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	var prev *crm.ConstraintConnection
	if conn.Colocation {
		prev, p.colocation = p.colocation, conn
	} else {
		prev, p.order = p.order, conn
	}
	return prev
}

// SameConstraintID is true when the placeholder's binding of conn's kind has conn's id.
func (p *Placeholder) SameConstraintID(conn *crm.ConstraintConnection) bool {
	b := p.Binding(conn.Colocation)
	return b != nil && b.ConstraintID != "" && b.ConstraintID == conn.ConstraintID
}

func (p *Placeholder) Sets() *ResourceSets {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sets
}

func (p *Placeholder) SetSets(s *ResourceSets) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets = s
}

// ResourceSets groups the order and colocation constraints folded under placeholders so they
// render and edit as one unit.
type ResourceSets struct {
	mu          sync.Mutex
	orders      map[string]*Placeholder
	colocations map[string]*Placeholder
}

func NewResourceSets() *ResourceSets {
	return &ResourceSets{
		orders:      make(map[string]*Placeholder),
		colocations: make(map[string]*Placeholder),
	}
}

// Add records that constraintID is drawn through p.
func (s *ResourceSets) Add(conn *crm.ConstraintConnection, p *Placeholder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn.Colocation {
		s.colocations[conn.ConstraintID] = p
	} else {
		s.orders[conn.ConstraintID] = p
	}
}

func (s *ResourceSets) OrderIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.orders))
}

func (s *ResourceSets) ColocationIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.colocations))
}
