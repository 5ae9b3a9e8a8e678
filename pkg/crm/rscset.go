package crm

import "slices"

// ResourceSet is one side of an N-ary constraint.
type ResourceSet struct {
	IDs        []string `json:"ids" yaml:"ids"`
	Sequential string   `json:"sequential,omitempty" yaml:"sequential,omitempty"`
	RequireAll string   `json:"require_all,omitempty" yaml:"require_all,omitempty"`
	Action     string   `json:"action,omitempty" yaml:"action,omitempty"`
	Role       string   `json:"role,omitempty" yaml:"role,omitempty"`
}

// Members returns the member ids of a possibly nil set.
func (s *ResourceSet) Members() []string {
	if s == nil {
		return nil
	}
	return s.IDs
}

// Empty is true for a nil set or a set without members.
func (s *ResourceSet) Empty() bool {
	return s == nil || len(s.IDs) == 0
}

func (s *ResourceSet) sameAttributes(o *ResourceSet) bool {
	return s.Sequential == o.Sequential &&
		s.RequireAll == o.RequireAll &&
		s.Action == o.Action &&
		s.Role == o.Role
}

// Equal compares member order and attributes. Two nil sets are equal.
func (s *ResourceSet) Equal(o *ResourceSet) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil {
		return false
	}
	return s.sameAttributes(o) && slices.Equal(s.IDs, o.IDs)
}

// IsSubsetOf is true when every member of s is a member of o. Attributes are ignored: an order
// set and a colocation set carry different ones.
func (s *ResourceSet) IsSubsetOf(o *ResourceSet) bool {
	if s.Empty() {
		return true
	}
	if o.Empty() {
		return false
	}
	for _, id := range s.IDs {
		if !slices.Contains(o.IDs, id) {
			return false
		}
	}
	return true
}

// ConstraintConnection is one resource-set constraint as stated by the snapshot. An order
// constraint reads Set1 before Set2; a colocation reads Set1 placed with Set2.
type ConstraintConnection struct {
	ConstraintID string       `json:"constraint_id" yaml:"constraint_id"`
	Colocation   bool         `json:"colocation" yaml:"colocation"`
	Set1         *ResourceSet `json:"set1,omitempty" yaml:"set1,omitempty"`
	Set2         *ResourceSet `json:"set2,omitempty" yaml:"set2,omitempty"`
}

// Empty is true when neither side has members.
func (c *ConstraintConnection) Empty() bool {
	return c.Set1.Empty() && c.Set2.Empty()
}

// Equal is true for the same kind and the same (Set1, Set2) pair.
func (c *ConstraintConnection) Equal(o *ConstraintConnection) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Colocation == o.Colocation && c.Set1.Equal(o.Set1) && c.Set2.Equal(o.Set2)
}

// EqualReversed is true for the same kind with the sides swapped.
func (c *ConstraintConnection) EqualReversed(o *ConstraintConnection) bool {
	if c == nil || o == nil {
		return false
	}
	return c.Colocation == o.Colocation && c.Set1.Equal(o.Set2) && c.Set2.Equal(o.Set1)
}

// CanUseSamePlaceholder is the loose comparison used to keep a placeholder across benign
// changes such as reordered or added members. Connections of the same kind compare side by
// side. An order and a colocation compare crosswise, because a colocation lists the dependent
// set first.
func (c *ConstraintConnection) CanUseSamePlaceholder(o *ConstraintConnection) bool {
	if c == nil || o == nil {
		return false
	}
	if c.Colocation == o.Colocation {
		return compatible(c.Set1, o.Set1) && compatible(c.Set2, o.Set2)
	}
	return compatible(c.Set1, o.Set2) && compatible(c.Set2, o.Set1)
}

// compatible is true when either side is empty or one holds every member of the other, in any
// order.
func compatible(a, b *ResourceSet) bool {
	if a.Empty() || b.Empty() {
		return true
	}
	return a.IsSubsetOf(b) || b.IsSubsetOf(a)
}

// Kind returns "colocation" or "order".
func (c *ConstraintConnection) Kind() string {
	if c.Colocation {
		return "colocation"
	}
	return "order"
}
