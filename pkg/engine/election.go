package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/store"
)

// ElectionManager decides which of several daemons watching the same cluster runs the
// poller. Followers keep serving the graph the leader publishes.
type ElectionManager struct {
	store     store.LeaseStore
	holderID  string
	leaseName string
	ttl       time.Duration
	logger    *slog.Logger

	onPromote func()
	onDemote  func()

	isLeader bool
	mu       sync.RWMutex

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewElectionManager creates an election on the lease "leader:<clusterID>".
func NewElectionManager(
	leases store.LeaseStore,
	holderID string,
	clusterID string,
	ttl time.Duration,
	onPromote func(),
	onDemote func(),
) *ElectionManager {
	return &ElectionManager{
		store:     leases,
		holderID:  holderID,
		leaseName: store.LeaderLease(clusterID),
		ttl:       ttl,
		logger:    slog.Default().With("holder_id", holderID, "lease", store.LeaderLease(clusterID)),
		onPromote: onPromote,
		onDemote:  onDemote,
		stopCh:    make(chan struct{}),
	}
}

// Start runs one election round immediately, then one every ttl/2 in the background.
func (em *ElectionManager) Start(ctx context.Context) {
	em.Elect(ctx)
	go func() {
		ticker := time.NewTicker(em.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				em.Elect(ctx)
			case <-em.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	em.logger.Info("ElectionManager started")
}

// Stop ends the election loop and releases the lease if this instance leads. It does not
// call onDemote.
func (em *ElectionManager) Stop(ctx context.Context) {
	em.stopOnce.Do(func() { close(em.stopCh) })

	em.mu.Lock()
	wasLeader := em.isLeader
	em.isLeader = false
	em.mu.Unlock()

	if wasLeader {
		if err := em.store.Release(ctx, em.leaseName, em.holderID); err != nil {
			em.logger.Error("Failed to release lease on stop", "error", err)
		} else {
			em.logger.Info("Lease released on stop")
		}
	}
	em.logger.Info("ElectionManager stopped")
}

// IsLeader returns true if this instance is currently the leader.
func (em *ElectionManager) IsLeader() bool {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.isLeader
}

// Elect runs one election round: the leader renews, everybody else tries to acquire.
// Callbacks run on transitions only.
func (em *ElectionManager) Elect(ctx context.Context) bool {
	em.mu.RLock()
	wasLeader := em.isLeader
	em.mu.RUnlock()

	var leader bool
	if wasLeader {
		err := em.store.Renew(ctx, em.leaseName, em.holderID, em.ttl)
		switch {
		case errors.Is(err, store.ErrLeaseLost):
			em.logger.Info("Lease lost")
		case err != nil:
			em.logger.Warn("Failed to renew lease", "error", err)
		default:
			leader = true
			em.logger.Debug("Lease renewed")
		}
	} else {
		ok, err := em.store.Acquire(ctx, em.leaseName, em.holderID, em.ttl)
		switch {
		case err != nil:
			em.logger.Warn("Failed to acquire lease", "error", err)
		case ok:
			leader = true
			em.logger.Info("Lease acquired")
		default:
			em.logger.Debug("Lease not acquired")
		}
	}

	em.mu.Lock()
	em.isLeader = leader
	em.mu.Unlock()

	switch {
	case !wasLeader && leader:
		em.logger.Info("Promoted to leader")
		if em.onPromote != nil {
			em.onPromote()
		}
	case wasLeader && !leader:
		em.logger.Info("Demoted from leader")
		if em.onDemote != nil {
			em.onDemote()
		}
	}
	return leader
}
