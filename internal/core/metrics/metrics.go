// Package metrics exposes Prometheus instrumentation for rule validation.
//
// Metrics (namespace "rulelint"):
//   - rulelint_rules_validated_total{source,result}
//   - rulelint_validation_errors_total{source,kind}
//   - rulelint_batch_size{source}
//   - rulelint_trigger_depth
//   - rulelint_requests_total{method,code}
//   - rulelint_request_duration_seconds{method}
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/rulelint/internal/types"
)

const namespace = "rulelint"

// Sources label where rules came from.
const (
	SourceCLI  = "cli"
	SourceGRPC = "grpc"
)

// Collector owns a private registry so tests and embedded servers never
// collide on the global default registry.
type Collector struct {
	registry *prometheus.Registry

	rulesValidated  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	batchSize       *prometheus.HistogramVec
	triggerDepth    prometheus.Histogram
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector registers all rulelint metrics with registry.
// A nil registry gets a fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		rulesValidated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rules_validated_total",
				Help:      "Rules checked, by source and result (valid, invalid)",
			},
			[]string{"source", "result"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_errors_total",
				Help:      "Individual validation errors by kind",
			},
			[]string{"source", "kind"},
		),
		batchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_size",
				Help:      "Rules per validation batch",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 7), // 1 to 4096
			},
			[]string{"source"},
		),
		triggerDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trigger_depth",
				Help:      "Nesting depth of valid rule triggers",
				Buckets:   prometheus.LinearBuckets(0, 1, types.MaxTriggerDepth+1),
			},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "gRPC requests by method and status code",
			},
			[]string{"method", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "gRPC request latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8), // 100µs to ~1.6s
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(
		c.rulesValidated,
		c.errorsTotal,
		c.batchSize,
		c.triggerDepth,
		c.requestsTotal,
		c.requestDuration,
	)
	return c
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRule records one rule result. errs is empty for a valid rule, in
// which case depth is recorded unless it is negative (unknown).
func (c *Collector) ObserveRule(source string, errs []error, depth int) {
	if c == nil {
		return
	}
	if len(errs) == 0 {
		c.rulesValidated.WithLabelValues(source, "valid").Inc()
		if depth >= 0 {
			c.triggerDepth.Observe(float64(depth))
		}
		return
	}
	c.rulesValidated.WithLabelValues(source, "invalid").Inc()
	for _, err := range errs {
		c.errorsTotal.WithLabelValues(source, Kind(err)).Inc()
	}
}

// ObserveBatch records the size of a validation batch.
func (c *Collector) ObserveBatch(source string, size int) {
	if c == nil {
		return
	}
	c.batchSize.WithLabelValues(source).Observe(float64(size))
}

// ObserveRequest records a completed gRPC call.
func (c *Collector) ObserveRequest(method, code string, d time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, code).Inc()
	c.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Kind buckets a validation error into a low-cardinality label.
func Kind(err error) string {
	switch {
	case errors.Is(err, types.ErrRuleNotMap):
		return "rule_not_map"
	case errors.Is(err, types.ErrMissingField):
		return "missing_field"
	case errors.Is(err, types.ErrTriggerTooDeep):
		return "trigger_too_deep"
	case errors.Is(err, types.ErrInvalidTrigger):
		return "invalid_trigger"
	case errors.Is(err, types.ErrActionsNotList):
		return "actions_not_list"
	case errors.Is(err, types.ErrInvalidAction):
		return "invalid_action"
	default:
		return "other"
	}
}
