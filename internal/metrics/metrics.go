// Package metrics exposes Prometheus instrumentation for graph construction.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// File results recorded by FileProcessed.
const (
	ResultParsed     = "parsed"
	ResultParseError = "parse_error"
	ResultReadError  = "read_error"
	ResultTooLarge   = "too_large"
)

// Metrics holds the collectors. Create with New.
type Metrics struct {
	filesTotal        *prometheus.CounterVec
	parseDuration     prometheus.Histogram
	nodesMerged       prometheus.Counter
	edgesMerged       prometheus.Counter
	commitsTotal      prometheus.Counter
	historyFailures   *prometheus.CounterVec
	functionsModified prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is useful in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repograph_files_total",
			Help: "Source files processed by result",
		}, []string{"result"}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "repograph_parse_duration_seconds",
			Help:    "Time spent extracting entities from one file",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		nodesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repograph_nodes_merged_total",
			Help: "Nodes merged into the repository graph",
		}),
		edgesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repograph_edges_merged_total",
			Help: "Edges merged into the repository graph",
		}),
		commitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repograph_commits_total",
			Help: "Commits processed by the history walkers",
		}),
		historyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repograph_history_access_failures_total",
			Help: "Version-control reads that failed and were skipped",
		}, []string{"operation"}),
		functionsModified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repograph_function_modifications_total",
			Help: "Per-commit function modifications attributed from diffs",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.filesTotal,
			m.parseDuration,
			m.nodesMerged,
			m.edgesMerged,
			m.commitsTotal,
			m.historyFailures,
			m.functionsModified,
		)
	}
	return m
}

// FileProcessed counts one file with the given result.
func (m *Metrics) FileProcessed(result string) {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues(result).Inc()
}

// ObserveParse records the duration of one extraction.
func (m *Metrics) ObserveParse(d time.Duration) {
	if m == nil {
		return
	}
	m.parseDuration.Observe(d.Seconds())
}

// Merged counts nodes and edges merged from one partial graph.
func (m *Metrics) Merged(nodes, edges int) {
	if m == nil {
		return
	}
	m.nodesMerged.Add(float64(nodes))
	m.edgesMerged.Add(float64(edges))
}

// CommitProcessed counts one commit.
func (m *Metrics) CommitProcessed() {
	if m == nil {
		return
	}
	m.commitsTotal.Inc()
}

// HistoryFailure counts one skipped version-control read.
func (m *Metrics) HistoryFailure(operation string) {
	if m == nil {
		return
	}
	m.historyFailures.WithLabelValues(operation).Inc()
}

// FunctionModified counts one attributed function change.
func (m *Metrics) FunctionModified() {
	if m == nil {
		return
	}
	m.functionsModified.Inc()
}
