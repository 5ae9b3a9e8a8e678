package topology

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// ErrDuplicateResource is returned when a second wrapper is registered for a CRM id.
var ErrDuplicateResource = errors.New("resource already registered")

// Registry owns every Resource and Placeholder of one cluster. The reconciler is its only
// writer; UI and API goroutines may read it at any time.
type Registry struct {
	mu           sync.RWMutex
	byID         map[string]*Resource
	placeholders map[string]*Placeholder
	nextSeq      int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:         make(map[string]*Resource),
		placeholders: make(map[string]*Placeholder),
	}
}

// FindByID returns the wrapper for a CRM id.
func (r *Registry) FindByID(id string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byID[id]
	return res, ok
}

// Register adds a resource wrapper.
func (r *Registry) Register(res *Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[res.ID()]; ok && existing != res {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, res.ID())
	}
	r.byID[res.ID()] = res
	return nil
}

// Unregister drops res if it is the wrapper registered under its id.
func (r *Registry) Unregister(res *Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID[res.ID()] == res {
		delete(r.byID, res.ID())
	}
}

// RegisterPlaceholder assigns p the next name and indexes it. Registering the same
// placeholder twice is a no-op.
func (r *Registry) RegisterPlaceholder(p *Placeholder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.seq != 0 {
		if _, ok := r.placeholders[p.Name()]; ok {
			return
		}
	} else {
		r.nextSeq++
		p.seq = r.nextSeq
	}
	r.placeholders[p.Name()] = p
}

// RangePlaceholders calls fn for every placeholder in name order while holding the read lock.
// Iteration stops when fn returns false. fn must not call back into the registry's write
// methods.
func (r *Registry) RangePlaceholders(fn func(name string, p *Placeholder) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := slices.SortedFunc(maps.Keys(r.placeholders), comparePlaceholderNames(r.placeholders))
	for _, name := range names {
		if !fn(name, r.placeholders[name]) {
			return
		}
	}
}

func comparePlaceholderNames(m map[string]*Placeholder) func(a, b string) int {
	return func(a, b string) int {
		return m[a].seq - m[b].seq
	}
}

// Placeholder looks up a placeholder by name.
func (r *Registry) Placeholder(name string) (*Placeholder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.placeholders[name]
	return p, ok
}

// Resources returns the registered resources sorted by id.
func (r *Registry) Resources() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Resource, 0, len(r.byID))
	for _, id := range slices.Sorted(maps.Keys(r.byID)) {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of registered resources and placeholders.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID) + len(r.placeholders)
}

// RemoveNotIn deregisters every resource and placeholder absent from present and returns them,
// resources first, each group sorted by node id.
func (r *Registry) RemoveNotIn(present mapset.Set[Node]) []Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Node
	for _, id := range slices.Sorted(maps.Keys(r.byID)) {
		res := r.byID[id]
		if present.Contains(res) {
			continue
		}
		delete(r.byID, id)
		removed = append(removed, res)
	}
	for _, name := range slices.SortedFunc(maps.Keys(r.placeholders), comparePlaceholderNames(r.placeholders)) {
		p := r.placeholders[name]
		if present.Contains(p) {
			continue
		}
		delete(r.placeholders, name)
		removed = append(removed, p)
	}

	for _, n := range removed {
		if res, ok := n.(*Resource); ok {
			res.Detach()
		}
	}
	return removed
}
