// Package metrics exposes the prometheus collector shared by the API and the worker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "campusevents"

// Collector is a prometheus.Collector for data service and worker metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	reloads           *prometheus.CounterVec
	activities        *prometheus.CounterVec
	sessions          prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Data service operations by outcome code.",
			}, []string{"operation", "code"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "Time spent in data service operations, reload included.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			}, []string{"operation"},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_reloads_total",
				Help:      "Read-through cache reloads by resource and result.",
			}, []string{"resource", "result"},
		),
		activities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "activities_consumed_total",
				Help:      "Activity messages processed by the worker.",
			}, []string{"kind"},
		),
		sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_sessions",
				Help:      "Data service sessions held by the API.",
			},
		),
	}
}

// ObserveOperation records one finished operation.
func (c *Collector) ObserveOperation(op, code string, took time.Duration) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(op, code).Inc()
	c.operationDuration.WithLabelValues(op).Observe(took.Seconds())
}

// ObserveReload records one cache reload.
func (c *Collector) ObserveReload(resource string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.reloads.WithLabelValues(resource, result).Inc()
}

// ObserveActivity counts one consumed activity message.
func (c *Collector) ObserveActivity(kind string) {
	if c == nil {
		return
	}
	c.activities.WithLabelValues(kind).Inc()
}

// SetSessions reports the number of live sessions.
func (c *Collector) SetSessions(n int) {
	if c == nil {
		return
	}
	c.sessions.Set(float64(n))
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	c.operationDuration.Describe(ch)
	c.reloads.Describe(ch)
	c.activities.Describe(ch)
	c.sessions.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	c.operationDuration.Collect(ch)
	c.reloads.Collect(ch)
	c.activities.Collect(ch)
	c.sessions.Collect(ch)
}
