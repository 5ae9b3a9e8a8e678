package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rmax-ai/clustergraph/pkg/crm"
	"github.com/rmax-ai/clustergraph/pkg/provider"
)

const sampleYAML = `
cluster_id: c1
primitives:
  r1:
    agent: {class: ocf, provider: heartbeat, type: IPaddr2}
    params: {ip: 10.0.0.1}
  r2:
    agent: {class: systemd, type: nginx}
groups:
  g1:
    members: [r1, r2]
colocations:
  col1:
    - {rsc: r1, with_rsc: r2, score: INFINITY}
resource_sets:
  - constraint_id: c1
    colocation: true
    set1: {ids: [r1]}
    set2: {ids: [r2]}
`

func TestDecode_YAML(t *testing.T) {
	got, err := Decode(strings.NewReader(sampleYAML), "yaml")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := &crm.ClusterStatus{
		ClusterID: "c1",
		Primitives: map[string]crm.Primitive{
			"r1": {Agent: crm.AgentType{Class: "ocf", Provider: "heartbeat", Type: "IPaddr2"}, Params: map[string]string{"ip": "10.0.0.1"}},
			"r2": {Agent: crm.AgentType{Class: "systemd", Type: "nginx"}},
		},
		Groups: map[string]crm.Group{"g1": {Members: []string{"r1", "r2"}}},
		ColocMap: map[string][]crm.ColocationData{
			"col1": {{Rsc: "r1", WithRsc: "r2", Score: "INFINITY"}},
		},
		ResourceSets: []*crm.ConstraintConnection{{
			ConstraintID: "c1",
			Colocation:   true,
			Set1:         &crm.ResourceSet{IDs: []string{"r1"}},
			Set2:         &crm.ResourceSet{IDs: []string{"r2"}},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		format string
		input  string
		errSub string
	}{
		{"unknown member", "yaml", "groups:\n  g1:\n    members: [ghost]\n", "unknown member"},
		{"duplicate id", "yaml", "primitives:\n  x: {}\ngroups:\n  x: {members: []}\n", "defined as both"},
		{"reserved id", "yaml", "groups:\n  none: {members: []}\n", "reserved"},
		{"unknown clone child", "json", `{"clones":{"cl":{"child":"ghost"}}}`, "unknown resource"},
		{"unknown field", "json", `{"bogus":1}`, "unknown field"},
		{"bad format", "toml", "", "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input), tt.format)
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("Expected error containing %q, got %v", tt.errSub, err)
			}
		})
	}
}

func TestSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.yaml")
	src := NewSource(path)
	ctx := context.Background()

	if _, err := src.Fetch(ctx); !errors.Is(err, provider.ErrNoSnapshot) {
		t.Fatalf("Expected ErrNoSnapshot for missing file, got %v", err)
	}

	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	snap, err := src.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	members, ok := snap.GroupResources("g1")
	if !ok || len(members) != 2 {
		t.Errorf("Expected g1 with 2 members, got %v (%v)", members, ok)
	}
	if src.ID() != "file:cluster.yaml" {
		t.Errorf("Unexpected source id %s", src.ID())
	}
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.json")
	body := `{"cluster_id":"c9","top_level":["r1"],"primitives":{"r1":{"agent":{"class":"ocf","provider":"linbit","type":"drbd"}}}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	status, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if status.ClusterID != "c9" {
		t.Errorf("Expected cluster c9, got %s", status.ClusterID)
	}
	if at, _ := status.ResourceType("r1"); at.Kind() != crm.AgentDRBD {
		t.Errorf("Expected DRBD agent, got %v", at)
	}
}
