// Package metrics exports Prometheus metrics for pipeline dispatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcome labels.
const (
	OutcomeServlet     = "servlet"     // a managed servlet serviced the request
	OutcomeFilter      = "filter"      // a filter handled the request without proceeding
	OutcomeFallthrough = "fallthrough" // handed to the host chain
	OutcomeError       = "error"       // a filter or servlet returned an error
)

// Collector tracks dispatch metrics. All methods are safe for concurrent
// use; the underlying vectors handle synchronization.
type Collector struct {
	dispatchTotal     *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	filterInvocations *prometheus.CounterVec
	chainLength       prometheus.Histogram
	pipelineInits     prometheus.Counter
	pipelineReloads   prometheus.Counter
}

// NewCollector creates a collector and registers it with reg. A nil reg
// leaves the metrics unregistered, which tests use.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "requests_total",
			Help:      "Requests dispatched through the pipeline by outcome.",
		}, []string{"outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent in pipeline dispatch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		filterInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "filter_invocations_total",
			Help:      "Filter invocations by binding key.",
		}, []string{"filter"}),
		chainLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "chain_filters",
			Help:      "Number of filters invoked per dispatched request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		pipelineInits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "pipeline_inits_total",
			Help:      "Pipeline initializations.",
		}),
		pipelineReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "pipeline_reloads_total",
			Help:      "Pipeline reloads triggered by configuration changes.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			c.dispatchTotal,
			c.dispatchDuration,
			c.filterInvocations,
			c.chainLength,
			c.pipelineInits,
			c.pipelineReloads,
		)
	}
	return c
}

// RecordDispatch records one completed dispatch.
func (c *Collector) RecordDispatch(outcome string, filters int, duration time.Duration) {
	if c == nil {
		return
	}
	c.dispatchTotal.WithLabelValues(outcome).Inc()
	c.dispatchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	c.chainLength.Observe(float64(filters))
}

// RecordFilter records one filter invocation.
func (c *Collector) RecordFilter(key string) {
	if c == nil {
		return
	}
	c.filterInvocations.WithLabelValues(key).Inc()
}

// RecordInit records a pipeline initialization.
func (c *Collector) RecordInit() {
	if c == nil {
		return
	}
	c.pipelineInits.Inc()
}

// RecordReload records a configuration-triggered pipeline reload.
func (c *Collector) RecordReload() {
	if c == nil {
		return
	}
	c.pipelineReloads.Inc()
}
