// Package metrics exposes prometheus instrumentation for the cache and the
// clustering engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	CacheEvictions   *prometheus.CounterVec
	CacheRejections  *prometheus.CounterVec
	CacheUtilization prometheus.Gauge

	ClusteringRuns      *prometheus.CounterVec
	ClusteringDuration  prometheus.Histogram
	EmbeddingsGenerated prometheus.Counter
	EmbeddingFailures   prometheus.Counter
}

// New registers all collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in the server, a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_cache_hits_total",
			Help: "Cache lookups that found an item, by category.",
		}, []string{"category"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_cache_misses_total",
			Help: "Cache lookups that found nothing, by category.",
		}, []string{"category"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_cache_evictions_total",
			Help: "Items evicted under capacity pressure, by category.",
		}, []string{"category"}),
		CacheRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_cache_rejections_total",
			Help: "Inserts rejected because a category held only pinned items.",
		}, []string{"category"}),
		CacheUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recall_cache_utilization",
			Help: "Total items over the utilization target, clamped to [0,1].",
		}),
		ClusteringRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recall_clustering_runs_total",
			Help: "Clustering operations executed, by kind.",
		}, []string{"kind"}),
		ClusteringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recall_clustering_duration_seconds",
			Help:    "Wall time of clustering operations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		EmbeddingsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recall_embeddings_generated_total",
			Help: "Joint embeddings generated for events.",
		}),
		EmbeddingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recall_embedding_failures_total",
			Help: "Per-event embedding failures.",
		}),
	}

	reg.MustRegister(
		m.CacheHits, m.CacheMisses, m.CacheEvictions, m.CacheRejections,
		m.CacheUtilization, m.ClusteringRuns, m.ClusteringDuration,
		m.EmbeddingsGenerated, m.EmbeddingFailures,
	)
	return m
}

// NewNop returns metrics bound to a throwaway registry, for components that
// are constructed without instrumentation.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
