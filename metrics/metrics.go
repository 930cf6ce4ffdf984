// Package metrics exposes Prometheus instrumentation for runs, execution
// tiers, model calls and synthesis. A nil *Collector is valid and records
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the InsightMesh metric vectors.
type Collector struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	activeRuns        prometheus.Gauge
	tierAttempts      *prometheus.CounterVec
	modelCalls        *prometheus.CounterVec
	modelDuration     *prometheus.HistogramVec
	synthesisTotal    *prometheus.CounterVec
}

// NewCollector registers the metric vectors on reg. A nil reg uses a fresh
// private registry, which keeps tests isolated.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Collector{
		executionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of agent executions by kind, method and status",
			},
			[]string{"kind", "method", "status"},
		),
		executionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Agent execution duration in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),
		activeRuns: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Number of runs currently in flight",
			},
		),
		tierAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_attempts_total",
				Help:      "Execution tier attempts by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		modelCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_calls_total",
				Help:      "Model calls by provider, purpose and status",
			},
			[]string{"provider", "purpose", "status"},
		),
		modelDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_call_duration_seconds",
				Help:      "Model call duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		synthesisTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesis_total",
				Help:      "Result syntheses by strategy",
			},
			[]string{"strategy"},
		),
	}
}

// RunStarted increments the active run gauge.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.activeRuns.Inc()
}

// RunFinished records a finished run.
func (c *Collector) RunFinished(kind, method string, success bool, dur time.Duration) {
	if c == nil {
		return
	}
	c.activeRuns.Dec()
	c.executionsTotal.WithLabelValues(kind, method, status(success)).Inc()
	c.executionDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

// TierAttempt records a tier serving ("success") or downgrading ("downgrade").
func (c *Collector) TierAttempt(tier string, success bool) {
	if c == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "downgrade"
	}
	c.tierAttempts.WithLabelValues(tier, outcome).Inc()
}

// ModelCall records one provider call.
func (c *Collector) ModelCall(provider, purpose string, success bool, dur time.Duration) {
	if c == nil {
		return
	}
	c.modelCalls.WithLabelValues(provider, purpose, status(success)).Inc()
	c.modelDuration.WithLabelValues(provider).Observe(dur.Seconds())
}

// Synthesis records which synthesis strategy produced a batch result.
func (c *Collector) Synthesis(strategy string) {
	if c == nil {
		return
	}
	c.synthesisTotal.WithLabelValues(strategy).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
