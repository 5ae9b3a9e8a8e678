package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rmax-ai/clustergraph/pkg/graph"
	"github.com/rmax-ai/clustergraph/pkg/provider"
	"github.com/rmax-ai/clustergraph/pkg/store"
)

// ErrLeaseHeld is returned by Refresh when another process is reconciling the same cluster.
var ErrLeaseHeld = errors.New("reconcile lease held by another process")

// HistoryRecorder persists pass summaries.
type HistoryRecorder interface {
	RecordPass(ctx context.Context, rec *store.PassRecord) error
}

// GraphPublisher shares the reconciled graph with other processes.
type GraphPublisher interface {
	Publish(ctx context.Context, g *graph.Graph) error
}

// GraphSource serves the current graph of the cluster.
type GraphSource interface {
	GetGraph() *graph.Graph
}

// Poller drives reconciliation: on every tick, and on demand, it fetches a snapshot and feeds
// it to the reconciler. Concurrent refreshes of one cluster share a single pass.
type Poller struct {
	source     provider.Source
	reconciler *Reconciler
	interval   time.Duration
	group      singleflight.Group
	logger     *slog.Logger

	leases      store.LeaseStore
	holderID    string
	leaseTTL    time.Duration
	passTimeout time.Duration

	history    HistoryRecorder
	publishers []GraphPublisher
	graph      GraphSource

	mu      sync.RWMutex
	last    *Result
	lastErr error
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithLeaseGuard makes every pass hold the lease "reconcile:<cluster>" in leases.
func WithLeaseGuard(leases store.LeaseStore, holderID string, ttl time.Duration) PollerOption {
	return func(p *Poller) {
		p.leases = leases
		p.holderID = holderID
		p.leaseTTL = ttl
	}
}

// WithPassTimeout bounds a single pass. The default is one minute.
func WithPassTimeout(d time.Duration) PollerOption {
	return func(p *Poller) { p.passTimeout = d }
}

// WithHistory records every pass, successful or not.
func WithHistory(h HistoryRecorder) PollerOption {
	return func(p *Poller) { p.history = h }
}

// WithPublisher publishes the graph served by g after every successful pass. Several
// publishers may be registered; they all receive the same graph.
func WithPublisher(pub GraphPublisher, g GraphSource) PollerOption {
	return func(p *Poller) {
		p.publishers = append(p.publishers, pub)
		p.graph = g
	}
}

// NewPoller creates a new poller instance
func NewPoller(source provider.Source, reconciler *Reconciler, interval time.Duration, opts ...PollerOption) *Poller {
	p := &Poller{
		source:      source,
		reconciler:  reconciler,
		interval:    interval,
		logger:      reconciler.logger.With("source", string(source.ID())),
		leaseTTL:    30 * time.Second,
		passTimeout: time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.holderID == "" {
		p.holderID = uuid.NewString()
	}
	return p
}

// Start runs a pass immediately and then on every tick until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Poller started", "interval", p.interval.String())
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopping due to context cancellation")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	_, err := p.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, provider.ErrNoSnapshot):
		p.logger.Debug("No snapshot available yet")
	case errors.Is(err, ErrLeaseHeld):
		p.logger.Debug("Skipping pass, lease held elsewhere")
	case errors.Is(err, context.Canceled):
	default:
		p.logger.Warn("Refresh failed", "error", err)
	}
}

// Refresh runs one pass now. Callers arriving while a pass is running get its result. The pass
// itself runs detached from every caller's cancellation, so a caller giving up returns
// ctx.Err() without cutting the pass short for the others.
func (p *Poller) Refresh(ctx context.Context) (*Result, error) {
	ch := p.group.DoChan(p.reconciler.ClusterID(), func() (any, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.passTimeout)
		defer cancel()
		return p.refresh(passCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			p.logger.Debug("Refresh joined an in-flight pass")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

func (p *Poller) refresh(ctx context.Context) (*Result, error) {
	if p.leases != nil {
		name := store.ReconcileLease(p.reconciler.ClusterID())
		ok, err := p.leases.Acquire(ctx, name, p.holderID, p.leaseTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lease %s: %w", name, err)
		}
		if !ok {
			return nil, ErrLeaseHeld
		}
		defer func() {
			// Release on a fresh context so a cancelled pass does not keep the lease.
			if err := p.leases.Release(context.Background(), name, p.holderID); err != nil {
				p.logger.Warn("Failed to release lease", "lease", name, "error", err)
			}
		}()
	}

	started := time.Now()
	snap, err := p.source.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, provider.ErrNoSnapshot) {
			p.record(ctx, nil, started, err)
		}
		p.setLast(nil, err)
		return nil, fmt.Errorf("fetch from %s: %w", p.source.ID(), err)
	}

	res, err := p.reconciler.Reconcile(ctx, snap)
	p.record(ctx, res, started, err)
	p.setLast(res, err)
	if err != nil {
		return nil, err
	}

	if len(p.publishers) > 0 && p.graph != nil {
		g := p.graph.GetGraph()
		for _, pub := range p.publishers {
			if err := pub.Publish(ctx, g); err != nil {
				p.logger.Warn("Failed to publish graph", "pass_id", res.PassID, "error", err)
			}
		}
	}
	if res.Changed() {
		p.logger.Info("Topology changed",
			"pass_id", res.PassID,
			"created", len(res.Created),
			"removed", len(res.Removed),
			"placeholders_created", len(res.PlaceholdersCreated),
		)
	}
	return res, nil
}

func (p *Poller) record(ctx context.Context, res *Result, started time.Time, passErr error) {
	if p.history == nil {
		return
	}
	rec := PassRecord(res)
	if rec == nil {
		rec = &store.PassRecord{
			PassID:     uuid.NewString(),
			ClusterID:  p.reconciler.ClusterID(),
			Mode:       p.reconciler.mode.String(),
			StartedAt:  started.UTC(),
			DurationMs: time.Since(started).Milliseconds(),
		}
	}
	if passErr != nil {
		rec.Error = passErr.Error()
	}
	if err := p.history.RecordPass(ctx, rec); err != nil {
		p.logger.Warn("Failed to record pass", "pass_id", rec.PassID, "error", err)
	}
}

func (p *Poller) setLast(res *Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if res != nil {
		p.last = res
	}
	p.lastErr = err
}

// Last returns the most recent successful pass and the error of the most recent attempt.
func (p *Poller) Last() (*Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.lastErr
}

// PassRecord converts a pass result into its persisted summary. It returns nil for nil.
func PassRecord(res *Result) *store.PassRecord {
	if res == nil {
		return nil
	}
	payload, err := json.Marshal(res)
	if err != nil {
		payload = nil
	}
	return &store.PassRecord{
		PassID:              res.PassID,
		ClusterID:           res.ClusterID,
		Mode:                res.Mode,
		StartedAt:           res.StartedAt,
		DurationMs:          res.Duration.Milliseconds(),
		Created:             len(res.Created),
		Updated:             len(res.Updated),
		Reused:              len(res.Reused),
		Removed:             len(res.Removed),
		PlaceholdersCreated: len(res.PlaceholdersCreated),
		PlaceholdersReused:  len(res.PlaceholdersReused),
		Unresolved:          res.Unresolved,
		Moves:               res.Moves,
		Payload:             payload,
	}
}
