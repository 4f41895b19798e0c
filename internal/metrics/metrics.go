// Package metrics exposes pipeline and merge counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	LinksProcessed *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	MergeGroups    prometheus.Counter
	MergeDeleted   prometheus.Counter
	MergeFailures  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the metrics on a fresh registry with Go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the metrics on reg and serves them from g
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LinksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alma_links_processed_total",
			Help: "Links processed by the discovery pipeline, by outcome",
		}, []string{"outcome"}),

		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "alma_fetch_duration_seconds",
			Help:    "Time to retrieve one page, including transient retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		MergeGroups: factory.NewCounter(prometheus.CounterOpts{
			Name: "alma_merge_groups_total",
			Help: "Duplicate groups reconciled by live merge runs",
		}),

		MergeDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "alma_merge_deleted_total",
			Help: "Duplicate records removed by live merge runs",
		}),

		MergeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alma_merge_failures_total",
			Help: "Merge failures by kind (commit, delete)",
		}, []string{"kind"}),

		gatherer: g,
	}
}

// ObserveOutcome counts one processed link
func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.LinksProcessed.WithLabelValues(outcome).Inc()
}

// ObserveFetch records how long a retrieval took
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// ObserveMerge records the totals of one live merge run
func (m *Metrics) ObserveMerge(groups, deleted, commitFailures, deleteFailures int) {
	if m == nil {
		return
	}
	m.MergeGroups.Add(float64(groups))
	m.MergeDeleted.Add(float64(deleted))
	if commitFailures > 0 {
		m.MergeFailures.WithLabelValues("commit").Add(float64(commitFailures))
	}
	if deleteFailures > 0 {
		m.MergeFailures.WithLabelValues("delete").Add(float64(deleteFailures))
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
