// Package metrics holds the Prometheus collectors for lineage builds and
// ancestor queries.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielpatrickdp/we-lineage/internal/lineage"
)

// #region collectors
var (
	// BuildsTotal counts genealogy builds by status (ok, malformed, failed).
	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_builds_total",
		Help: "Total genealogy builds by status",
	}, []string{"status"})

	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lineage_build_duration_seconds",
		Help:    "Genealogy build duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	// AncestorQueriesTotal counts map-to-ancestor calls by status.
	AncestorQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_ancestor_queries_total",
		Help: "Total map-to-ancestor queries by status",
	}, []string{"status"})

	AncestorQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lineage_ancestor_query_duration_seconds",
		Help:    "Map-to-ancestor duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lineage_graph_nodes",
		Help: "Node count of the most recently built genealogy",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lineage_graph_edges",
		Help: "Edge count of the most recently built genealogy",
	})
)

// #endregion collectors

// #region helpers
// ObserveBuild records one build outcome. Size gauges move only on success.
func ObserveBuild(status string, started time.Time, nodes, edges int) {
	BuildsTotal.WithLabelValues(status).Inc()
	BuildDuration.Observe(time.Since(started).Seconds())
	if status == "ok" {
		GraphNodes.Set(float64(nodes))
		GraphEdges.Set(float64(edges))
	}
}

// ObserveQuery records one ancestor query outcome.
func ObserveQuery(err error, started time.Time) {
	AncestorQueriesTotal.WithLabelValues(QueryStatus(err)).Inc()
	AncestorQueryDuration.Observe(time.Since(started).Seconds())
}

// QueryStatus is the status label for a map-to-ancestor outcome.
func QueryStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, lineage.ErrInvalidLag):
		return "invalid_lag"
	case errors.Is(err, lineage.ErrAmbiguousAncestry):
		return "ambiguous"
	default:
		return "error"
	}
}

// #endregion helpers
