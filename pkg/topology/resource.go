package topology

import (
	"maps"
	"slices"
	"sync"

	"github.com/rmax-ai/clustergraph/pkg/crm"
)

// Kind is the structural discriminant of a graph node.
type Kind string

const (
	KindPrimitive   Kind = "primitive"
	KindGroup       Kind = "group"
	KindClone       Kind = "clone"
	KindPlaceholder Kind = "placeholder"
)

// Node is anything the graph can draw: a Resource or a Placeholder.
type Node interface {
	NodeID() string
	Kind() Kind
}

// Resource wraps one resource manager object (primitive, group or clone). A registry holds at
// most one Resource per CRM id, so the same pointer is returned for as long as the id stays in
// the cluster.
type Resource struct {
	id   string
	kind Kind

	mu          sync.RWMutex
	agent       crm.AgentType
	isNew       bool
	updated     bool
	params      map[string]string
	parentClone *Resource
	parentGroup *Resource
	members     []*Resource
	child       *Resource
	dependsOn   *Resource
}

// NewResource builds a wrapper marked new.
func NewResource(id string, kind Kind) *Resource {
	return &Resource{
		id:     id,
		kind:   kind,
		isNew:  true,
		params: make(map[string]string),
	}
}

func (r *Resource) NodeID() string { return r.id }
func (r *Resource) Kind() Kind     { return r.kind }
func (r *Resource) ID() string     { return r.id }

func (r *Resource) Agent() crm.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agent
}

func (r *Resource) SetAgent(a crm.AgentType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agent = a
}

// AgentKind is AgentUnknown for groups, clones and primitives whose agent type was not known
// when the wrapper was built.
func (r *Resource) AgentKind() crm.AgentKind {
	return r.Agent().Kind()
}

func (r *Resource) IsNew() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isNew
}

func (r *Resource) SetNew(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isNew = v
}

// Updated is set when a live pass reapplied parameters to an existing wrapper; the UI clears
// it after repainting.
func (r *Resource) Updated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updated
}

func (r *Resource) SetUpdated(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = v
}

// Params returns a copy of the current parameters.
func (r *Resource) Params() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.params)
}

// SetParams replaces the parameters and reports whether they changed.
func (r *Resource) SetParams(p map[string]string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if maps.Equal(r.params, p) {
		return false
	}
	r.params = maps.Clone(p)
	if r.params == nil {
		r.params = make(map[string]string)
	}
	return true
}

func (r *Resource) ParentClone() *Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parentClone
}

func (r *Resource) ParentGroup() *Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parentGroup
}

// Parent returns the owning group or clone, nil for top-level resources.
func (r *Resource) Parent() *Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.parentGroup != nil {
		return r.parentGroup
	}
	return r.parentClone
}

// Members returns the ordered members of a group.
func (r *Resource) Members() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.members)
}

// Child returns the resource wrapped by a clone.
func (r *Resource) Child() *Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.child
}

// StorageDependency returns the block device a filesystem resource depends on.
func (r *Resource) StorageDependency() *Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dependsOn
}

func (r *Resource) SetStorageDependency(dev *Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dependsOn = dev
}

// Adopt makes child a member of the group or the wrapped child of the clone r. It never
// appends a member twice and detaches child from a previous, different owner. Adopt reports
// whether the membership changed.
func (r *Resource) Adopt(child *Resource) bool {
	if old := child.Parent(); old != nil && old != r {
		old.Release(child)
	}

	r.mu.Lock()
	changed := false
	var replaced *Resource
	switch r.kind {
	case KindGroup:
		if !slices.Contains(r.members, child) {
			r.members = append(r.members, child)
			changed = true
		}
	case KindClone:
		if r.child != child {
			replaced, r.child = r.child, child
			changed = true
		}
	}
	r.mu.Unlock()

	if replaced != nil {
		replaced.mu.Lock()
		if replaced.parentClone == r {
			replaced.parentClone = nil
		}
		replaced.mu.Unlock()
	}

	child.mu.Lock()
	switch r.kind {
	case KindGroup:
		child.parentGroup = r
		child.parentClone = nil
	case KindClone:
		child.parentClone = r
		child.parentGroup = nil
	}
	child.mu.Unlock()
	return changed
}

// Release detaches child from r.
func (r *Resource) Release(child *Resource) {
	r.mu.Lock()
	if i := slices.Index(r.members, child); i >= 0 {
		r.members = slices.Delete(r.members, i, i+1)
	}
	if r.child == child {
		r.child = nil
	}
	r.mu.Unlock()

	child.mu.Lock()
	if child.parentGroup == r {
		child.parentGroup = nil
	}
	if child.parentClone == r {
		child.parentClone = nil
	}
	child.mu.Unlock()
}

// Detach makes r a top-level resource.
func (r *Resource) Detach() {
	if p := r.Parent(); p != nil {
		p.Release(r)
	}
}

// MoveMember places member at pos in the group's member list and reports whether it moved.
func (r *Resource) MoveMember(pos int, member *Resource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.members, member)
	if i < 0 || i == pos {
		return false
	}
	r.members = slices.Delete(r.members, i, i+1)
	pos = min(max(pos, 0), len(r.members))
	r.members = slices.Insert(r.members, pos, member)
	return true
}

// RetainMembers drops every member that keep rejects and returns the dropped ones.
func (r *Resource) RetainMembers(keep func(*Resource) bool) []*Resource {
	r.mu.Lock()
	var dropped []*Resource
	kept := r.members[:0]
	for _, m := range r.members {
		if keep(m) {
			kept = append(kept, m)
		} else {
			dropped = append(dropped, m)
		}
	}
	clear(r.members[len(kept):])
	r.members = kept
	r.mu.Unlock()

	for _, m := range dropped {
		m.mu.Lock()
		if m.parentGroup == r {
			m.parentGroup = nil
		}
		m.mu.Unlock()
	}
	return dropped
}
