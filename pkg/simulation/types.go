package simulation

import (
	"time"

	"github.com/rmax-ai/clustergraph/pkg/crm"
)

// Scenario is a sequence of snapshots fed to one reconciler, each with optional expectations.
type Scenario struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	ClusterID    string `json:"cluster_id" yaml:"cluster_id"`
	Mode         string `json:"mode" yaml:"mode"` // "live" (default) or "test"
	HideOrphaned bool   `json:"hide_orphaned" yaml:"hide_orphaned"`
	Steps        []Step `json:"steps" yaml:"steps"`
}

type Step struct {
	Name     string            `json:"name" yaml:"name"`
	Snapshot crm.ClusterStatus `json:"snapshot" yaml:"snapshot"`
	Expect   *Expectation      `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// Expectation lists the counts a step must produce. Nil fields are not checked.
type Expectation struct {
	Created             *int              `json:"created,omitempty" yaml:"created,omitempty"`
	Updated             *int              `json:"updated,omitempty" yaml:"updated,omitempty"`
	Removed             *int              `json:"removed,omitempty" yaml:"removed,omitempty"`
	PlaceholdersCreated *int              `json:"placeholders_created,omitempty" yaml:"placeholders_created,omitempty"`
	PlaceholdersReused  *int              `json:"placeholders_reused,omitempty" yaml:"placeholders_reused,omitempty"`
	Unresolved          *int              `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	Moves               *int              `json:"moves,omitempty" yaml:"moves,omitempty"`
	Nodes               *int              `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Edges               *int              `json:"edges,omitempty" yaml:"edges,omitempty"`
	StorageDependencies map[string]string `json:"storage_dependencies,omitempty" yaml:"storage_dependencies,omitempty"`
	// Error is a substring the pass error must contain; a step expecting an error fails when
	// the pass succeeds.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// SimulationResult captures the outcome of every step for reporting
type SimulationResult struct {
	ScenarioName string        `json:"scenario_name"`
	Duration     time.Duration `json:"duration"`
	Steps        []StepResult  `json:"steps"`
	FinalNodes   int           `json:"final_nodes"`
	FinalEdges   int           `json:"final_edges"`
	Success      bool          `json:"success"`
}

type StepResult struct {
	Step                string        `json:"step"`
	PassID              string        `json:"pass_id,omitempty"`
	Created             []string      `json:"created,omitempty"`
	Removed             []string      `json:"removed,omitempty"`
	PlaceholdersCreated []string      `json:"placeholders_created,omitempty"`
	Error               string        `json:"error,omitempty"`
	Checks              []CheckResult `json:"checks,omitempty"`
	Passed              bool          `json:"passed"`
}

type CheckResult struct {
	Metric   string `json:"metric"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}
