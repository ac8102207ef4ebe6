// Package metrics exposes Prometheus collectors for the write and read paths.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "entitygraph"

	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics holds the collectors. Build it once per registry with New.
type Metrics struct {
	bulkDocs         *prometheus.CounterVec
	bulkChunkSeconds prometheus.Histogram
	conflicts        *prometheus.CounterVec
	propagations     prometheus.Counter
	propagatedDocs   *prometheus.CounterVec
	resolveRounds    prometheus.Histogram
	resolveFetched   prometheus.Counter
	searchPages      prometheus.Counter
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		bulkDocs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bulk",
				Name:      "documents_total",
				Help:      "Documents written through chunked bulk writes, by result",
			},
			[]string{"result"},
		),
		bulkChunkSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bulk",
				Name:      "chunk_duration_seconds",
				Help:      "Duration of one bulk chunk round trip",
				Buckets:   prometheus.DefBuckets,
			},
		),
		conflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conflicts_total",
				Help:      "Revision conflicts, by operation and whether the retry resolved them",
			},
			[]string{"operation", "result"},
		),
		propagations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "propagate",
				Name:      "runs_total",
				Help:      "Propagation runs that found at least one entity to refresh",
			},
		),
		propagatedDocs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "propagate",
				Name:      "documents_total",
				Help:      "Referencing documents rewritten by propagation, by result",
			},
			[]string{"result"},
		),
		resolveRounds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "resolve",
				Name:      "rounds",
				Help:      "Fetch rounds performed per graph resolution",
				Buckets:   []float64{0, 1, 2, 3, 4, 6, 8},
			},
		),
		resolveFetched: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolve",
				Name:      "fetched_total",
				Help:      "Entities fetched during graph resolution",
			},
		),
		searchPages: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "pages_total",
				Help:      "Search pages requested from the store",
			},
		),
	}
}

// ObserveBulkChunk records one bulk chunk.
func (m *Metrics) ObserveBulkChunk(ok, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bulkDocs.WithLabelValues(ResultOK).Add(float64(ok))
	m.bulkDocs.WithLabelValues(ResultFailed).Add(float64(failed))
	m.bulkChunkSeconds.Observe(elapsed.Seconds())
}

// Conflict records a revision conflict and whether its retry succeeded.
func (m *Metrics) Conflict(operation string, resolved bool) {
	if m == nil {
		return
	}
	result := ResultFailed
	if resolved {
		result = ResultOK
	}
	m.conflicts.WithLabelValues(operation, result).Inc()
}

// Propagated records one propagation run.
func (m *Metrics) Propagated(ok, failed int) {
	if m == nil {
		return
	}
	m.propagations.Inc()
	m.propagatedDocs.WithLabelValues(ResultOK).Add(float64(ok))
	m.propagatedDocs.WithLabelValues(ResultFailed).Add(float64(failed))
}

// Resolved records one graph resolution.
func (m *Metrics) Resolved(rounds, fetched int) {
	if m == nil {
		return
	}
	m.resolveRounds.Observe(float64(rounds))
	m.resolveFetched.Add(float64(fetched))
}

// SearchPage records one search page request.
func (m *Metrics) SearchPage() {
	if m == nil {
		return
	}
	m.searchPages.Inc()
}
