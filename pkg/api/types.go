package api

import "time"

// HealthResponse is the body of GET /v1/health
type HealthResponse struct {
	Status     string     `json:"status"`
	ClusterID  string     `json:"cluster_id"`
	Leader     bool       `json:"leader"`
	LastPassID string     `json:"last_pass_id,omitempty"`
	LastPassAt *time.Time `json:"last_pass_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}
