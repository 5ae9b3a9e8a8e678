package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ReconcilePassesTotal counts reconciliation passes by outcome
	ReconcilePassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustergraph_reconcile_passes_total",
			Help: "Total number of reconciliation passes",
		},
		[]string{"cluster_id", "result"},
	)

	// ReconcileDuration tracks how long a pass takes
	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clustergraph_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"cluster_id"},
	)

	// RegistrySize tracks the number of resource wrappers after the last pass
	RegistrySize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clustergraph_registry_resources",
			Help: "Number of resource wrappers held by the registry",
		},
		[]string{"cluster_id"},
	)

	// PlaceholdersCreatedTotal counts placeholders that could not be reused
	PlaceholdersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustergraph_placeholders_created_total",
			Help: "Total number of resource set placeholders created",
		},
		[]string{"cluster_id"},
	)

	// RemovedElementsTotal counts wrappers and placeholders removed by cleanup
	RemovedElementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustergraph_removed_elements_total",
			Help: "Total number of graph elements removed after a pass",
		},
		[]string{"cluster_id"},
	)

	// UnresolvedReferencesTotal counts constraint sides skipped until a later pass
	UnresolvedReferencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustergraph_unresolved_references_total",
			Help: "Total number of constraint references that could not be resolved",
		},
		[]string{"cluster_id"},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(ReconcilePassesTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(RegistrySize)
	prometheus.MustRegister(PlaceholdersCreatedTotal)
	prometheus.MustRegister(RemovedElementsTotal)
	prometheus.MustRegister(UnresolvedReferencesTotal)
}
