package provider

import (
	"context"
	"errors"

	"github.com/rmax-ai/clustergraph/pkg/crm"
)

// ErrNoSnapshot is returned by a Source that has nothing to offer yet.
var ErrNoSnapshot = errors.New("no snapshot available")

// SourceID identifies a snapshot source (e.g., "file", "mock")
type SourceID string

// Source delivers complete snapshots of one cluster's configuration. Parsing the cluster
// manager's own output is the source's business; the reconciler only sees crm.Snapshot.
type Source interface {
	// ID returns the unique identifier for this source
	ID() SourceID

	// Fetch returns the current snapshot. It must not return a partially populated one.
	Fetch(ctx context.Context) (crm.Snapshot, error)
}
