package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// expire moves the lease's expiry into the past, as if its holder had stopped renewing.
func expire(t *testing.T, s *Store, name string) {
	t.Helper()
	if _, err := s.db.Exec("UPDATE leases SET expires_at = ? WHERE name = ?", time.Now().UTC().Add(-time.Minute), name); err != nil {
		t.Fatalf("failed to expire %s: %v", name, err)
	}
}

func mustAcquire(t *testing.T, s *Store, name, holder string, want bool) {
	t.Helper()
	got, err := s.Acquire(context.Background(), name, holder, time.Minute)
	if err != nil {
		t.Fatalf("Acquire(%s, %s) failed: %v", name, holder, err)
	}
	if got != want {
		t.Fatalf("Acquire(%s, %s) = %v, want %v", name, holder, got, want)
	}
}

func TestLeaderLease_Failover(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	leader := LeaderLease("nfs-prod")

	mustAcquire(t, s, leader, "daemon-a", true)
	first, err := s.Get(ctx, leader)
	if err != nil || first == nil {
		t.Fatalf("Get failed: %v, %v", first, err)
	}
	if first.Name != "leader:nfs-prod" || first.HolderID != "daemon-a" || first.Epoch != 1 {
		t.Errorf("Unexpected lease: %+v", first)
	}

	// The election loop re-acquires every tick; that extends the lease in the same epoch.
	mustAcquire(t, s, leader, "daemon-a", true)
	again, _ := s.Get(ctx, leader)
	if again.Epoch != 1 || again.Version <= first.Version {
		t.Errorf("Expected same epoch and a newer version, got %+v after %+v", again, first)
	}

	mustAcquire(t, s, leader, "daemon-b", false)

	expire(t, s, leader)
	mustAcquire(t, s, leader, "daemon-b", true)
	took, _ := s.Get(ctx, leader)
	if took.HolderID != "daemon-b" || took.Epoch != 2 {
		t.Errorf("Expected daemon-b in epoch 2, got %+v", took)
	}

	if err := s.Renew(ctx, leader, "daemon-a", time.Minute); !errors.Is(err, ErrLeaseLost) {
		t.Errorf("Expected the demoted daemon to get ErrLeaseLost, got %v", err)
	}
	if err := s.Renew(ctx, leader, "daemon-b", time.Minute); err != nil {
		t.Errorf("Renew by the new leader failed: %v", err)
	}
}

func TestLeaderLease_ExpiredIsNotRenewed(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	leader := LeaderLease("nfs-prod")

	mustAcquire(t, s, leader, "daemon-a", true)
	expire(t, s, leader)
	if err := s.Renew(ctx, leader, "daemon-a", time.Minute); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("Expected ErrLeaseLost for an expired lease, got %v", err)
	}

	// Winning it back without a rival keeps the epoch.
	mustAcquire(t, s, leader, "daemon-a", true)
	if l, _ := s.Get(ctx, leader); l.Epoch != 1 {
		t.Errorf("Expected epoch 1, got %d", l.Epoch)
	}
}

func TestReconcileLease_PerCluster(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	mustAcquire(t, s, ReconcileLease("c1"), "daemon-a", true)
	mustAcquire(t, s, ReconcileLease("c2"), "daemon-b", true)
	mustAcquire(t, s, ReconcileLease("c1"), "daemon-b", false)

	// A pass finishing on daemon-b must not free daemon-a's cluster.
	if err := s.Release(ctx, ReconcileLease("c1"), "daemon-b"); err != nil {
		t.Fatalf("Release by a non-holder failed: %v", err)
	}
	if l, _ := s.Get(ctx, ReconcileLease("c1")); l == nil || l.HolderID != "daemon-a" {
		t.Fatalf("Expected daemon-a to keep reconcile:c1, got %+v", l)
	}

	if err := s.Release(ctx, ReconcileLease("c1"), "daemon-a"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if l, _ := s.Get(ctx, ReconcileLease("c1")); l != nil {
		t.Errorf("Expected reconcile:c1 to be free, got %+v", l)
	}
	if err := s.Release(ctx, ReconcileLease("c1"), "daemon-a"); err != nil {
		t.Errorf("Releasing a free lease failed: %v", err)
	}
	mustAcquire(t, s, ReconcileLease("c1"), "daemon-b", true)

	if l, _ := s.Get(ctx, ReconcileLease("c2")); l == nil || l.HolderID != "daemon-b" {
		t.Errorf("Expected reconcile:c2 untouched, got %+v", l)
	}
}

func TestLeaseGet_Missing(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	l, err := s.Get(context.Background(), LeaderLease("unknown"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if l != nil {
		t.Errorf("Expected nil, got %+v", l)
	}
}
