// Package metrics exports evaluation metrics to Prometheus.
//
// A Collector implements runtime.Metrics. Register it on an evaluation with
// runtime.WithMetrics:
//
//	reg := prometheus.NewRegistry()
//	ev := runtime.New(runtime.WithMetrics(metrics.New(reg, "eavdb")))
//
// Metrics:
//   - <ns>_block_executions_total{block}
//   - <ns>_block_duration_seconds{block}
//   - <ns>_block_check_seconds
//   - <ns>_facts_committed_total{change}
//   - <ns>_fixpoint_rounds
//   - <ns>_fixpoint_duration_seconds
//   - <ns>_fixpoints_total{converged}
//
// All metric operations are safe for concurrent use.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/orneryd/eavdb/pkg/runtime"
)

// DefaultNamespace prefixes every metric when New is given none.
const DefaultNamespace = "eavdb"

// Collector holds the Prometheus metrics of one or more evaluations.
type Collector struct {
	// BlockExecutions counts block executions. Labels: block
	BlockExecutions *prometheus.CounterVec

	// BlockDuration measures a single block execution. Labels: block
	BlockDuration *prometheus.HistogramVec

	// BlockCheckDuration measures dependency checks of a commit against all blocks.
	BlockCheckDuration prometheus.Histogram

	// FactsCommitted counts committed facts. Labels: change (added, removed)
	FactsCommitted *prometheus.CounterVec

	// FixpointRounds observes the rounds each fixpoint took.
	FixpointRounds prometheus.Histogram

	// FixpointDuration measures whole fixpoints.
	FixpointDuration prometheus.Histogram

	// Fixpoints counts fixpoints. Labels: converged (true, false)
	Fixpoints *prometheus.CounterVec
}

var _ runtime.Metrics = (*Collector)(nil)

// New creates the metrics and registers them with reg. A nil reg uses the
// default Prometheus registerer. Registering twice on the same registry
// panics.
func New(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)
	return &Collector{
		BlockExecutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "block_executions_total",
				Help:      "Total number of block executions by block",
			},
			[]string{"block"},
		),
		BlockDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "block_duration_seconds",
				Help:      "Duration of a single block execution in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"block"},
		),
		BlockCheckDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "block_check_seconds",
				Help:      "Time spent selecting the blocks affected by a commit",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
			},
		),
		FactsCommitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "facts_committed_total",
				Help:      "Total number of facts committed by change type",
			},
			[]string{"change"},
		),
		FixpointRounds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fixpoint_rounds",
				Help:      "Rounds needed to reach a fixpoint",
				Buckets:   []float64{1, 2, 3, 5, 10, 20, 50, 100},
			},
		),
		FixpointDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fixpoint_duration_seconds",
				Help:      "Duration of a whole fixpoint in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		Fixpoints: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fixpoints_total",
				Help:      "Total number of fixpoints by whether they converged",
			},
			[]string{"converged"},
		),
	}
}

// BlockExecuted records one block execution.
func (c *Collector) BlockExecuted(block string, d time.Duration) {
	c.BlockExecutions.WithLabelValues(block).Inc()
	c.BlockDuration.WithLabelValues(block).Observe(d.Seconds())
}

// BlockCheck records a dependency check.
func (c *Collector) BlockCheck(d time.Duration) {
	c.BlockCheckDuration.Observe(d.Seconds())
}

// Committed records the facts of a commit.
func (c *Collector) Committed(added, removed int) {
	if added > 0 {
		c.FactsCommitted.WithLabelValues("added").Add(float64(added))
	}
	if removed > 0 {
		c.FactsCommitted.WithLabelValues("removed").Add(float64(removed))
	}
}

// FixpointCompleted records a finished fixpoint.
func (c *Collector) FixpointCompleted(rounds int, d time.Duration, converged bool) {
	c.FixpointRounds.Observe(float64(rounds))
	c.FixpointDuration.Observe(d.Seconds())
	c.Fixpoints.WithLabelValues(strconv.FormatBool(converged)).Inc()
}
