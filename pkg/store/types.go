package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrLeaseLost is returned by Renew when the lease expired or passed to another holder.
var ErrLeaseLost = errors.New("lease lost")

// LeaderLease names the lease held by the elected daemon of a cluster.
func LeaderLease(clusterID string) string { return "leader:" + clusterID }

// ReconcileLease names the lease held for the duration of one pass over a cluster.
func ReconcileLease(clusterID string) string { return "reconcile:" + clusterID }

// PassRecord is the persisted summary of one reconciliation pass.
type PassRecord struct {
	PassID              string          `json:"pass_id"`
	ClusterID           string          `json:"cluster_id"`
	Mode                string          `json:"mode"`
	StartedAt           time.Time       `json:"started_at"`
	DurationMs          int64           `json:"duration_ms"`
	Created             int             `json:"created"`
	Updated             int             `json:"updated"`
	Reused              int             `json:"reused"`
	Removed             int             `json:"removed"`
	PlaceholdersCreated int             `json:"placeholders_created"`
	PlaceholdersReused  int             `json:"placeholders_reused"`
	Unresolved          int             `json:"unresolved"`
	Moves               int             `json:"moves"`
	Error               string          `json:"error,omitempty"`
	Payload             json.RawMessage `json:"payload,omitempty"` // Full pass diff
}

// PassFilter defines filters for querying pass history.
type PassFilter struct {
	ClusterID string
	Since     time.Time
	Limit     int
}

// Lease represents a distributed lock or leadership claim.
type Lease struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"` // For CAS (Compare-And-Swap) logic
	Epoch     int64     `json:"epoch"`   // Incremented whenever the holder changes
}

// LeaseStore defines the interface for acquiring and renewing leases.
type LeaseStore interface {
	// Acquire tries to acquire the lease. Returns true if successful.
	// If the lease is already held by holderID, it renews it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Renew extends a lease holderID still holds, or returns ErrLeaseLost.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error

	// Release releases the lease if held by holderID.
	Release(ctx context.Context, name, holderID string) error

	// Get returns the current lease state.
	Get(ctx context.Context, name string) (*Lease, error)
}
