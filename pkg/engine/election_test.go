package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/store"
)

// MockLeaseStore is a mock implementation of store.LeaseStore for testing.
type MockLeaseStore struct {
	mu sync.Mutex

	acquireResult bool
	acquireError  error
	renewError    error
	releaseError  error

	acquired []string
	renewed  int
	released []string
}

func (m *MockLeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquired = append(m.acquired, name)
	return m.acquireResult, m.acquireError
}

func (m *MockLeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renewed++
	return m.renewError
}

func (m *MockLeaseStore) Release(ctx context.Context, name, holderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, name)
	return m.releaseError
}

func (m *MockLeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	return nil, nil
}

func (m *MockLeaseStore) set(fn func(m *MockLeaseStore)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func TestElectionManager_Transitions(t *testing.T) {
	leases := &MockLeaseStore{}
	var promoted, demoted int
	em := NewElectionManager(leases, "holder", "c1", time.Minute,
		func() { promoted++ },
		func() { demoted++ },
	)
	ctx := context.Background()

	if em.Elect(ctx) || em.IsLeader() {
		t.Fatal("Expected follower while the lease is held elsewhere")
	}

	leases.set(func(m *MockLeaseStore) { m.acquireResult = true })
	if !em.Elect(ctx) {
		t.Fatal("Expected promotion after acquisition")
	}
	if !em.Elect(ctx) {
		t.Fatal("Expected leader to renew")
	}
	if promoted != 1 {
		t.Errorf("Expected 1 promotion, got %d", promoted)
	}

	leases.set(func(m *MockLeaseStore) { m.renewError = store.ErrLeaseLost })
	if em.Elect(ctx) {
		t.Fatal("Expected demotion after failed renewal")
	}
	if demoted != 1 {
		t.Errorf("Expected 1 demotion, got %d", demoted)
	}

	leases.mu.Lock()
	defer leases.mu.Unlock()
	if leases.renewed != 2 {
		t.Errorf("Expected 2 renew calls, got %d", leases.renewed)
	}
	if len(leases.acquired) == 0 || leases.acquired[0] != "leader:c1" {
		t.Errorf("Expected lease name leader:c1, got %v", leases.acquired)
	}
}

func TestElectionManager_StartAndStop(t *testing.T) {
	leases := &MockLeaseStore{acquireResult: true}
	promoteCh := make(chan struct{}, 1)
	em := NewElectionManager(leases, "holder", "c1", time.Minute,
		func() { promoteCh <- struct{}{} },
		func() { t.Error("OnDemote should not be called on stop") },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	em.Start(ctx)

	select {
	case <-promoteCh:
	case <-time.After(time.Second):
		t.Fatal("OnPromote not called")
	}

	em.Stop(ctx)
	em.Stop(ctx) // idempotent

	if em.IsLeader() {
		t.Error("Expected not to lead after stop")
	}
	leases.mu.Lock()
	defer leases.mu.Unlock()
	if len(leases.released) != 1 {
		t.Errorf("Expected exactly one release, got %v", leases.released)
	}
}
