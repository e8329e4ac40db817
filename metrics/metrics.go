// Package metrics holds the Prometheus collectors exported by a bank.
//
// All methods are safe on a nil *Metrics so callers can record
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "knowbank"

// Metrics groups the bank's collectors.
type Metrics struct {
	documentsAdded   prometheus.Counter
	documentsRemoved prometheus.Counter
	documents        prometheus.Gauge
	clusters         prometheus.Gauge
	clusterDecisions *prometheus.CounterVec
	searches         *prometheus.CounterVec
	searchDuration   prometheus.Histogram
	integrityFaults  prometheus.Counter
	extractions      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		documentsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_added_total",
			Help:      "Total documents added to the index",
		}),

		documentsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_removed_total",
			Help:      "Total documents removed from the index",
		}),

		documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "documents",
			Help:      "Number of live documents",
		}),

		clusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clusters",
			Help:      "Number of clusters",
		}),

		clusterDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_decisions_total",
			Help:      "Cluster assignment decisions",
		}, []string{"decision"}), // "joined" / "created"

		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total searches",
		}, []string{"status"}),

		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		integrityFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_faults_total",
			Help:      "Cluster integrity faults detected",
		}),

		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Concept extractions by outcome",
		}, []string{"result"}), // "ok" / "fallback"
	}

	reg.MustRegister(
		m.documentsAdded, m.documentsRemoved,
		m.documents, m.clusters, m.clusterDecisions,
		m.searches, m.searchDuration,
		m.integrityFaults, m.extractions,
	)

	return m
}

// DocumentAdded records an insertion.
func (m *Metrics) DocumentAdded() {
	if m == nil {
		return
	}
	m.documentsAdded.Inc()
}

// DocumentRemoved records a removal.
func (m *Metrics) DocumentRemoved() {
	if m == nil {
		return
	}
	m.documentsRemoved.Inc()
}

// SetSizes sets the document and cluster gauges.
func (m *Metrics) SetSizes(documents, clusters int) {
	if m == nil {
		return
	}
	m.documents.Set(float64(documents))
	m.clusters.Set(float64(clusters))
}

// ClusterDecision records whether a document joined an existing cluster or
// created a new one.
func (m *Metrics) ClusterDecision(created bool) {
	if m == nil {
		return
	}
	if created {
		m.clusterDecisions.WithLabelValues("created").Inc()
		return
	}
	m.clusterDecisions.WithLabelValues("joined").Inc()
}

// ObserveSearch records one search and its duration.
func (m *Metrics) ObserveSearch(d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.searches.WithLabelValues(status).Inc()
	m.searchDuration.Observe(d.Seconds())
}

// IntegrityFault records one detected fault.
func (m *Metrics) IntegrityFault() {
	if m == nil {
		return
	}
	m.integrityFaults.Inc()
}

// Extraction records a concept extraction outcome.
func (m *Metrics) Extraction(fallback bool) {
	if m == nil {
		return
	}
	if fallback {
		m.extractions.WithLabelValues("fallback").Inc()
		return
	}
	m.extractions.WithLabelValues("ok").Inc()
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
