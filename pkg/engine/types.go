package engine

import (
	"errors"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rmax-ai/clustergraph/pkg/topology"
)

// ErrInvariant marks a programming-logic fault detected during a pass. The pass is abandoned
// before its cleanup step.
var ErrInvariant = errors.New("reconciliation invariant violated")

// RunMode selects whether a pass may mutate UI-facing flags.
type RunMode int

const (
	// RunLive marks reconciled wrappers updated and clears their new flag.
	RunLive RunMode = iota
	// RunTest reconciles without touching new/updated flags.
	RunTest
)

func (m RunMode) String() string {
	if m == RunTest {
		return "test"
	}
	return "live"
}

// Policy carries host preferences consulted during a pass.
type Policy interface {
	HideOrphanedResources() bool
}

// StaticPolicy is a fixed Policy.
type StaticPolicy struct {
	HideOrphaned bool
}

func (p StaticPolicy) HideOrphanedResources() bool { return p.HideOrphaned }

// GraphConsumer receives the drawing instructions produced by a pass.
type GraphConsumer interface {
	AddOrderEdge(constraintID string, from, to topology.Node)
	AddColocationEdge(constraintID string, from, to topology.Node)
	// AddPlaceholder is called once per placeholder created or first bound in the pass, after
	// every other decision of the pass is final. A negative pos lets the consumer place it.
	AddPlaceholder(p *topology.Placeholder, pos int)
	// MoveNodeToPosition moves n to pos among its siblings.
	MoveNodeToPosition(pos int, n topology.Node)
	// RemoveElementsNotIn drops every node and edge not backed by present.
	RemoveElementsNotIn(present mapset.Set[topology.Node])
	// ReloadNode refreshes resource enumerations after resources were created.
	ReloadNode()
}

// Result is the diff produced by one reconciliation pass.
type Result struct {
	PassID              string            `json:"pass_id"`
	ClusterID           string            `json:"cluster_id"`
	Mode                string            `json:"mode"`
	StartedAt           time.Time         `json:"started_at"`
	Duration            time.Duration     `json:"duration"`
	Created             []string          `json:"created,omitempty"`
	Updated             []string          `json:"updated,omitempty"`
	Reused              []string          `json:"reused,omitempty"`
	PlaceholdersCreated []string          `json:"placeholders_created,omitempty"`
	PlaceholdersReused  []string          `json:"placeholders_reused,omitempty"`
	Removed             []string          `json:"removed,omitempty"`
	UnknownAgents       []string          `json:"unknown_agents,omitempty"`
	Unresolved          int               `json:"unresolved"`
	Moves               int               `json:"moves"`
	StorageDependencies map[string]string `json:"storage_dependencies,omitempty"`
}

// Changed reports whether the pass created or removed anything.
func (r *Result) Changed() bool {
	return len(r.Created) > 0 || len(r.PlaceholdersCreated) > 0 || len(r.Removed) > 0 || len(r.Updated) > 0
}
