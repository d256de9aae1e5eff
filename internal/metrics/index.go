package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index lifecycle metrics: reindex runs, publishing, sync and the serving runtime.
var (
	ReindexRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "reindex_runs_total",
			Help:      "Reindex attempts by result",
		},
		[]string{"result"}, // ok / failed / locked
	)

	ReindexDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragdex",
			Name:      "reindex_duration_seconds",
			Help:      "Wall time of reindex jobs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	IndexReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "index_reloads_total",
			Help:      "Index load attempts by result",
		},
		[]string{"result"},
	)

	IndexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragdex",
			Name:      "index_chunks",
			Help:      "Number of chunks in the serving index",
		},
	)

	QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "query_cache_total",
			Help:      "Query embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "publish_total",
			Help:      "Publish steps by result",
		},
		[]string{"step", "result"}, // step: artifacts / manifest
	)

	SyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdex",
			Name:      "sync_total",
			Help:      "Artifact sync attempts by result",
		},
		[]string{"result"}, // updated / unchanged / unpublished / failed
	)
)

var indexMetricsRegistered bool

// RegisterIndexMetrics registers index lifecycle metrics. Must be called once from main.
func RegisterIndexMetrics() {
	if indexMetricsRegistered {
		return
	}
	prometheus.MustRegister(ReindexRunsTotal)
	prometheus.MustRegister(ReindexDuration)
	prometheus.MustRegister(IndexReloadsTotal)
	prometheus.MustRegister(IndexChunks)
	prometheus.MustRegister(QueryCacheTotal)
	prometheus.MustRegister(PublishTotal)
	prometheus.MustRegister(SyncTotal)
	indexMetricsRegistered = true
}
