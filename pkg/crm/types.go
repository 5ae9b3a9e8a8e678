package crm

import "fmt"

// TopLevelGroup is the pseudo group that lists primitives which are not members of any group
// or clone.
const TopLevelGroup = "none"

// AgentKind discriminates resource agents the reconciler treats specially.
type AgentKind int

const (
	AgentUnknown AgentKind = iota
	AgentGeneric
	AgentDRBD
	AgentFilesystem
)

func (k AgentKind) String() string {
	switch k {
	case AgentGeneric:
		return "generic"
	case AgentDRBD:
		return "drbd"
	case AgentFilesystem:
		return "filesystem"
	default:
		return "unknown"
	}
}

// AgentType identifies a resource agent, e.g. ocf:linbit:drbd.
type AgentType struct {
	Class    string `json:"class" yaml:"class"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Type     string `json:"type" yaml:"type"`
}

// Kind classifies the agent.
func (a AgentType) Kind() AgentKind {
	switch {
	case a.Type == "":
		return AgentUnknown
	case a.Class == "ocf" && a.Provider == "linbit" && a.Type == "drbd":
		return AgentDRBD
	case a.Class == "ocf" && a.Provider == "heartbeat" && a.Type == "Filesystem":
		return AgentFilesystem
	default:
		return AgentGeneric
	}
}

func (a AgentType) String() string {
	if a.Provider == "" {
		return fmt.Sprintf("%s:%s", a.Class, a.Type)
	}
	return fmt.Sprintf("%s:%s:%s", a.Class, a.Provider, a.Type)
}

// OrderData is one plain (non resource set) ordering constraint: First must start before Then.
type OrderData struct {
	First       string `json:"first" yaml:"first"`
	Then        string `json:"then" yaml:"then"`
	Score       string `json:"score,omitempty" yaml:"score,omitempty"`
	FirstAction string `json:"first_action,omitempty" yaml:"first_action,omitempty"`
	ThenAction  string `json:"then_action,omitempty" yaml:"then_action,omitempty"`
}

// ColocationData is one plain colocation constraint: Rsc is placed with WithRsc.
type ColocationData struct {
	Rsc         string `json:"rsc" yaml:"rsc"`
	WithRsc     string `json:"with_rsc" yaml:"with_rsc"`
	Score       string `json:"score,omitempty" yaml:"score,omitempty"`
	RscRole     string `json:"rsc_role,omitempty" yaml:"rsc_role,omitempty"`
	WithRscRole string `json:"with_rsc_role,omitempty" yaml:"with_rsc_role,omitempty"`
}

// Links reports whether the colocation ties a and b together, in either direction.
func (c ColocationData) Links(a, b string) bool {
	return (c.Rsc == a && c.WithRsc == b) || (c.Rsc == b && c.WithRsc == a)
}
