package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/rmax-ai/clustergraph/pkg/crm"
	"github.com/rmax-ai/clustergraph/pkg/topology"
)

// Reconciler folds snapshots of one cluster into a Registry and a GraphConsumer. Calls to
// Reconcile are serialized.
type Reconciler struct {
	clusterID string
	registry  *topology.Registry
	graph     GraphConsumer
	policy    Policy
	mode      RunMode
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPolicy sets the host policy. The default hides nothing.
func WithPolicy(p Policy) Option {
	return func(r *Reconciler) { r.policy = p }
}

// WithRunMode sets the run mode. The default is RunLive.
func WithRunMode(m RunMode) Option {
	return func(r *Reconciler) { r.mode = m }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// NewReconciler creates a reconciler for clusterID.
func NewReconciler(clusterID string, registry *topology.Registry, graph GraphConsumer, opts ...Option) *Reconciler {
	r := &Reconciler{
		clusterID: clusterID,
		registry:  registry,
		graph:     graph,
		policy:    StaticPolicy{},
		mode:      RunLive,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("cluster_id", clusterID)
	return r
}

// ClusterID returns the cluster this reconciler serves.
func (r *Reconciler) ClusterID() string {
	return r.clusterID
}

// Registry returns the registry the reconciler writes to.
func (r *Reconciler) Registry() *topology.Registry {
	return r.registry
}

// pass holds the state of one Reconcile call.
type pass struct {
	r       *Reconciler
	snap    crm.Snapshot
	present mapset.Set[topology.Node]
	result  *Result

	// ownerOf maps the id of every group or clone member to its container, as stated by the
	// snapshot.
	ownerOf map[string]string
	// membersDone holds the containers whose members were already walked.
	membersDone map[string]bool
	// colocated holds "a\x00b" keys for every plain colocation pair, both directions.
	colocated map[string]bool
	// draw holds the edge and move calls until the pass succeeds.
	draw drawBuffer
	// newPlaceholders are flushed to the graph after everything else is decided.
	newPlaceholders []*topology.Placeholder
	storageDeps     map[*topology.Resource]*topology.Resource
}

// Reconcile runs one pass against snap. On error the graph receives nothing and nothing is
// removed from the registry; the partial pass is abandoned and the next pass starts from the
// current registry.
func (r *Reconciler) Reconcile(ctx context.Context, snap crm.Snapshot) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	p := &pass{
		r:       r,
		snap:    snap,
		present: mapset.NewThreadUnsafeSet[topology.Node](),
		result: &Result{
			PassID:    uuid.NewString(),
			ClusterID: r.clusterID,
			Mode:      r.mode.String(),
			StartedAt: start.UTC(),
		},
		ownerOf:     make(map[string]string),
		membersDone: make(map[string]bool),
		colocated:   make(map[string]bool),
		storageDeps: make(map[*topology.Resource]*topology.Resource),
	}

	result, err := p.run(ctx)
	duration := time.Since(start)
	ReconcileDuration.WithLabelValues(r.clusterID).Observe(duration.Seconds())
	if err != nil {
		ReconcilePassesTotal.WithLabelValues(r.clusterID, "error").Inc()
		r.logger.Error("Reconciliation pass abandoned", "pass_id", p.result.PassID, "error", err)
		return nil, err
	}
	result.Duration = duration
	ReconcilePassesTotal.WithLabelValues(r.clusterID, "ok").Inc()
	RegistrySize.WithLabelValues(r.clusterID).Set(float64(r.registry.Len()))
	PlaceholdersCreatedTotal.WithLabelValues(r.clusterID).Add(float64(len(result.PlaceholdersCreated)))
	RemovedElementsTotal.WithLabelValues(r.clusterID).Add(float64(len(result.Removed)))
	UnresolvedReferencesTotal.WithLabelValues(r.clusterID).Add(float64(result.Unresolved))

	r.logger.Debug("Reconciliation pass complete",
		"pass_id", result.PassID,
		"created", len(result.Created),
		"updated", len(result.Updated),
		"removed", len(result.Removed),
		"placeholders_created", len(result.PlaceholdersCreated),
		"unresolved", result.Unresolved,
		"duration_ms", duration.Milliseconds(),
	)
	return result, nil
}

func (p *pass) run(ctx context.Context) (*Result, error) {
	ids := p.snap.GroupsAndClones()
	for _, id := range ids {
		if id == crm.TopLevelGroup {
			continue
		}
		if children, ok := p.snap.GroupResources(id); ok {
			for _, child := range children {
				p.ownerOf[child] = id
			}
		}
	}

	for _, id := range ids {
		if err := p.reconcileGroupOrClone(id); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.reconcileResourceSets(p.snap.ResourceSetConnections()); err != nil {
		return nil, err
	}

	colocations := p.snap.Colocations()
	p.indexColocations(colocations)
	p.buildOrders(p.snap.Orders())
	p.buildColocations(colocations)
	p.applyStorageDependencies()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	graph := p.r.graph
	p.draw.flush(graph)
	for _, ph := range p.newPlaceholders {
		graph.AddPlaceholder(ph, -1)
	}

	removed := p.r.registry.RemoveNotIn(p.present)
	for _, n := range removed {
		p.result.Removed = append(p.result.Removed, n.NodeID())
	}
	graph.RemoveElementsNotIn(p.present)

	if len(p.result.Created) > 0 || len(p.result.PlaceholdersCreated) > 0 {
		graph.ReloadNode()
	}

	if p.r.mode == RunLive {
		for _, n := range p.present.ToSlice() {
			switch v := n.(type) {
			case *topology.Resource:
				v.SetNew(false)
			case *topology.Placeholder:
				v.SetNew(false)
			}
		}
	}
	return p.result, nil
}

// findOrCreate returns the wrapper for id with the current parameters applied, and marks it
// present.
func (p *pass) findOrCreate(id string, kind topology.Kind) (*topology.Resource, error) {
	registry := p.r.registry
	params := p.snap.Params(id)

	res, ok := registry.FindByID(id)
	if ok && res.Kind() == kind && p.present.Contains(res) {
		return res, nil
	}
	if ok && res.Kind() != kind {
		p.r.logger.Info("Resource changed kind, replacing wrapper", "resource_id", id, "from", res.Kind(), "to", kind)
		res.Detach()
		registry.Unregister(res)
		ok = false
	}

	if !ok {
		res = topology.NewResource(id, kind)
		res.SetParams(params)
		if err := registry.Register(res); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvariant, err)
		}
		p.result.Created = append(p.result.Created, id)
	} else {
		if res.SetParams(params) {
			p.result.Updated = append(p.result.Updated, id)
		} else {
			p.result.Reused = append(p.result.Reused, id)
		}
		if p.r.mode == RunLive {
			res.SetUpdated(true)
		}
	}
	p.present.Add(res)
	return res, nil
}

// resolve returns the wrapper for id when it is part of this pass.
func (p *pass) resolve(id string) (*topology.Resource, bool) {
	res, ok := p.r.registry.FindByID(id)
	if !ok || !p.present.Contains(res) {
		return nil, false
	}
	return res, true
}
