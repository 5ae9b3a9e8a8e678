package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/crm"
)

// MockSource replays a queue of snapshots for tests and simulations. Each Fetch consumes the
// next queued snapshot; once the queue is drained the last one is returned again.
type MockSource struct {
	id      SourceID
	mu      sync.Mutex
	queue   []crm.Snapshot
	last    crm.Snapshot
	failErr error
	latency time.Duration
	fetches int
}

// NewMockSource creates a mock source primed with snaps.
func NewMockSource(id string, snaps ...crm.Snapshot) *MockSource {
	return &MockSource{
		id:    SourceID(id),
		queue: snaps,
	}
}

func (m *MockSource) ID() SourceID {
	return m.id
}

// Push queues another snapshot.
func (m *MockSource) Push(s crm.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, s)
}

// FailNext makes the next Fetch return err.
func (m *MockSource) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// SetLatency simulates a slow cluster manager.
func (m *MockSource) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Fetches returns how many times Fetch was called.
func (m *MockSource) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

func (m *MockSource) Fetch(ctx context.Context) (crm.Snapshot, error) {
	m.mu.Lock()
	latency := m.latency
	m.fetches++
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(latency):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failErr; err != nil {
		m.failErr = nil
		return nil, err
	}
	if len(m.queue) > 0 {
		m.last = m.queue[0]
		m.queue = m.queue[1:]
	}
	if m.last == nil {
		return nil, ErrNoSnapshot
	}
	return m.last, nil
}
