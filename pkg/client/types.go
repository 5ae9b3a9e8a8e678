package client

import "time"

// Status is the daemon health report.
type Status struct {
	Status     string     `json:"status"`
	ClusterID  string     `json:"cluster_id"`
	Leader     bool       `json:"leader"`
	LastPassID string     `json:"last_pass_id,omitempty"`
	LastPassAt *time.Time `json:"last_pass_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Pass is the summary of one reconciliation pass, newest first in listings.
type Pass struct {
	PassID              string    `json:"pass_id"`
	ClusterID           string    `json:"cluster_id"`
	Mode                string    `json:"mode"`
	StartedAt           time.Time `json:"started_at"`
	DurationMs          int64     `json:"duration_ms"`
	Created             int       `json:"created"`
	Updated             int       `json:"updated"`
	Reused              int       `json:"reused"`
	Removed             int       `json:"removed"`
	PlaceholdersCreated int       `json:"placeholders_created"`
	PlaceholdersReused  int       `json:"placeholders_reused"`
	Unresolved          int       `json:"unresolved"`
	Moves               int       `json:"moves"`
	Error               string    `json:"error,omitempty"`
}

// RefreshResult is the diff of a pass triggered through Refresh.
type RefreshResult struct {
	PassID              string            `json:"pass_id"`
	ClusterID           string            `json:"cluster_id"`
	Mode                string            `json:"mode"`
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
