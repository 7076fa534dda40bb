package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"keepernest/pkg/domain"
)

// PrometheusMetricsRecorder exports operation counters labelled by operation
// and outcome (ok or the error class) and per-operation latency histograms.
type PrometheusMetricsRecorder struct {
	total   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the service collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keepernest",
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by outcome: ok, rejected, not_found, auth or infrastructure.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keepernest",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.total, r.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, class domain.ErrorClass, duration time.Duration) {
	if operation == "" {
		return
	}
	r.total.WithLabelValues(operation, outcomeLabel(class)).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// MultiMetricsRecorder fans observations out to several recorders.
type MultiMetricsRecorder []MetricsRecorder

// Observe implements MetricsRecorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, class domain.ErrorClass, duration time.Duration) {
	for _, r := range m {
		if r != nil {
			r.Observe(ctx, operation, class, duration)
		}
	}
}
