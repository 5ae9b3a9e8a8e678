package crm

import (
	"maps"
	"slices"
)

// Snapshot is one parsed view of the live cluster configuration. Implementations must be
// complete and must not change while a reconciliation pass reads them.
type Snapshot interface {
	// GroupsAndClones returns every group and clone id, plus TopLevelGroup when top-level
	// primitives exist.
	GroupsAndClones() []string
	IsClone(id string) bool
	Params(id string) map[string]string
	// GroupResources returns the ordered member ids of a group, the single child of a clone, or
	// the top-level primitives for TopLevelGroup.
	GroupResources(id string) ([]string, bool)
	// Orders and Colocations map constraint ids to the plain constraints they define.
	Orders() map[string][]OrderData
	Colocations() map[string][]ColocationData
	ResourceSetConnections() []*ConstraintConnection
	ResourceType(id string) (AgentType, bool)
	IsOrphaned(id string) bool
}

// Primitive describes a primitive resource.
type Primitive struct {
	Agent    AgentType         `json:"agent" yaml:"agent"`
	Params   map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Orphaned bool              `json:"orphaned,omitempty" yaml:"orphaned,omitempty"`
}

// Group describes a group and its ordered members.
type Group struct {
	Members []string          `json:"members" yaml:"members"`
	Params  map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Clone describes a clone (or promotable clone) wrapping a primitive or a group.
type Clone struct {
	Child      string            `json:"child" yaml:"child"`
	Promotable bool              `json:"promotable,omitempty" yaml:"promotable,omitempty"`
	Params     map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// ClusterStatus is the in-memory Snapshot produced by the status parser or loaded from a file.
type ClusterStatus struct {
	ClusterID    string                      `json:"cluster_id" yaml:"cluster_id"`
	Primitives   map[string]Primitive        `json:"primitives,omitempty" yaml:"primitives,omitempty"`
	Groups       map[string]Group            `json:"groups,omitempty" yaml:"groups,omitempty"`
	Clones       map[string]Clone            `json:"clones,omitempty" yaml:"clones,omitempty"`
	TopLevel     []string                    `json:"top_level,omitempty" yaml:"top_level,omitempty"`
	OrderMap     map[string][]OrderData      `json:"orders,omitempty" yaml:"orders,omitempty"`
	ColocMap     map[string][]ColocationData `json:"colocations,omitempty" yaml:"colocations,omitempty"`
	ResourceSets []*ConstraintConnection     `json:"resource_sets,omitempty" yaml:"resource_sets,omitempty"`
}

var _ Snapshot = (*ClusterStatus)(nil)

func (s *ClusterStatus) GroupsAndClones() []string {
	ids := make([]string, 0, len(s.Groups)+len(s.Clones)+1)
	ids = slices.AppendSeq(ids, maps.Keys(s.Groups))
	ids = slices.AppendSeq(ids, maps.Keys(s.Clones))
	if len(s.TopLevel) > 0 {
		ids = append(ids, TopLevelGroup)
	}
	slices.Sort(ids)
	return ids
}

func (s *ClusterStatus) IsClone(id string) bool {
	_, ok := s.Clones[id]
	return ok
}

func (s *ClusterStatus) Params(id string) map[string]string {
	if p, ok := s.Primitives[id]; ok {
		return maps.Clone(p.Params)
	}
	if g, ok := s.Groups[id]; ok {
		return maps.Clone(g.Params)
	}
	if c, ok := s.Clones[id]; ok {
		return maps.Clone(c.Params)
	}
	return nil
}

func (s *ClusterStatus) GroupResources(id string) ([]string, bool) {
	if id == TopLevelGroup {
		return s.TopLevel, len(s.TopLevel) > 0
	}
	if g, ok := s.Groups[id]; ok {
		return g.Members, true
	}
	if c, ok := s.Clones[id]; ok && c.Child != "" {
		return []string{c.Child}, true
	}
	return nil, false
}

func (s *ClusterStatus) Orders() map[string][]OrderData {
	return s.OrderMap
}

func (s *ClusterStatus) Colocations() map[string][]ColocationData {
	return s.ColocMap
}

func (s *ClusterStatus) ResourceSetConnections() []*ConstraintConnection {
	return s.ResourceSets
}

func (s *ClusterStatus) ResourceType(id string) (AgentType, bool) {
	p, ok := s.Primitives[id]
	if !ok || p.Agent.Type == "" {
		return AgentType{}, false
	}
	return p.Agent, true
}

func (s *ClusterStatus) IsOrphaned(id string) bool {
	return s.Primitives[id].Orphaned
}
