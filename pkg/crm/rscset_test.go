package crm

import "testing"

func set(ids ...string) *ResourceSet {
	return &ResourceSet{IDs: ids}
}

func TestConstraintConnection_Equal(t *testing.T) {
	a := &ConstraintConnection{ConstraintID: "c1", Colocation: true, Set1: set("r1"), Set2: set("r2")}
	b := &ConstraintConnection{ConstraintID: "c9", Colocation: true, Set1: set("r1"), Set2: set("r2")}
	if !a.Equal(b) {
		t.Error("expected connections with the same sides to be equal regardless of id")
	}

	order := &ConstraintConnection{ConstraintID: "o1", Set1: set("r1"), Set2: set("r2")}
	if a.Equal(order) {
		t.Error("order and colocation must not be equal")
	}

	reordered := &ConstraintConnection{Colocation: true, Set1: set("r1"), Set2: set("r2", "r3")}
	if a.Equal(reordered) {
		t.Error("different member lists must not be equal")
	}

	attrs := &ConstraintConnection{Colocation: true, Set1: &ResourceSet{IDs: []string{"r1"}, Sequential: "false"}, Set2: set("r2")}
	if a.Equal(attrs) {
		t.Error("different set attributes must not be equal")
	}
}

func TestConstraintConnection_EqualReversed(t *testing.T) {
	a := &ConstraintConnection{ConstraintID: "c1", Colocation: true, Set1: set("A"), Set2: set("B")}
	b := &ConstraintConnection{ConstraintID: "c1", Colocation: true, Set1: set("B"), Set2: set("A")}
	if !a.EqualReversed(b) || !b.EqualReversed(a) {
		t.Error("expected swapped sides to be equal-reversed")
	}
	if a.EqualReversed(a) {
		t.Error("a connection with distinct sides is not its own reverse")
	}

	half := &ConstraintConnection{Colocation: true, Set1: set("A")}
	halfRev := &ConstraintConnection{Colocation: true, Set2: set("A")}
	if !half.EqualReversed(halfRev) {
		t.Error("expected one-sided connections to match reversed")
	}
}

func TestConstraintConnection_CanUseSamePlaceholder(t *testing.T) {
	tests := []struct {
		name string
		a, b *ConstraintConnection
		want bool
	}{
		{
			name: "same kind equal",
			a:    &ConstraintConnection{Set1: set("a"), Set2: set("b")},
			b:    &ConstraintConnection{Set1: set("a"), Set2: set("b")},
			want: true,
		},
		{
			name: "same kind different",
			a:    &ConstraintConnection{Set1: set("a"), Set2: set("b")},
			b:    &ConstraintConnection{Set1: set("a"), Set2: set("c")},
			want: false,
		},
		{
			name: "same kind reordered",
			a:    &ConstraintConnection{Colocation: true, Set1: set("r1", "r3"), Set2: set("r2")},
			b:    &ConstraintConnection{Colocation: true, Set1: set("r3", "r1"), Set2: set("r2")},
			want: true,
		},
		{
			name: "same kind grown",
			a:    &ConstraintConnection{Set1: set("a"), Set2: set("b", "c")},
			b:    &ConstraintConnection{Set1: set("a"), Set2: set("b")},
			want: true,
		},
		{
			name: "same kind sides are not swapped",
			a:    &ConstraintConnection{Set1: set("a"), Set2: set("b")},
			b:    &ConstraintConnection{Set1: set("b"), Set2: set("a")},
			want: false,
		},
		{
			name: "order and colocation crosswise",
			a:    &ConstraintConnection{Set1: set("a", "b"), Set2: set("c")},
			b:    &ConstraintConnection{Colocation: true, Set1: set("c"), Set2: set("a")},
			want: true,
		},
		{
			name: "order and colocation disjoint",
			a:    &ConstraintConnection{Set1: set("a"), Set2: set("c")},
			b:    &ConstraintConnection{Colocation: true, Set1: set("x"), Set2: set("y")},
			want: false,
		},
		{
			name: "nil side is compatible",
			a:    &ConstraintConnection{Set1: set("a")},
			b:    &ConstraintConnection{Colocation: true, Set2: set("a")},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.CanUseSamePlaceholder(tt.b); got != tt.want {
				t.Errorf("CanUseSamePlaceholder() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAgentType_Kind(t *testing.T) {
	tests := []struct {
		agent AgentType
		want  AgentKind
	}{
		{AgentType{Class: "ocf", Provider: "linbit", Type: "drbd"}, AgentDRBD},
		{AgentType{Class: "ocf", Provider: "heartbeat", Type: "Filesystem"}, AgentFilesystem},
		{AgentType{Class: "systemd", Type: "nginx"}, AgentGeneric},
		{AgentType{}, AgentUnknown},
	}
	for _, tt := range tests {
		if got := tt.agent.Kind(); got != tt.want {
			t.Errorf("%s: Kind() = %v, want %v", tt.agent, got, tt.want)
		}
	}
}

func TestClusterStatus_GroupResources(t *testing.T) {
	s := &ClusterStatus{
		Groups:   map[string]Group{"g1": {Members: []string{"r1", "r2"}}},
		Clones:   map[string]Clone{"cl1": {Child: "g1"}},
		TopLevel: []string{"r9"},
	}
	ids := s.GroupsAndClones()
	want := []string{"cl1", "g1", TopLevelGroup}
	if len(ids) != len(want) {
		t.Fatalf("GroupsAndClones() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("GroupsAndClones()[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
	if members, ok := s.GroupResources("cl1"); !ok || len(members) != 1 || members[0] != "g1" {
		t.Errorf("clone child = %v, %v", members, ok)
	}
	if members, ok := s.GroupResources(TopLevelGroup); !ok || members[0] != "r9" {
		t.Errorf("top level = %v, %v", members, ok)
	}
	if _, ok := s.GroupResources("missing"); ok {
		t.Error("expected missing group to be absent")
	}
}
