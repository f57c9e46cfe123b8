package internal

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics exposes record service telemetry as prometheus collectors.
type Metrics struct {
	operations *prometheus.HistogramVec
	deletes    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      metricOperationLatency,
			Help:      "Latency of record service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity", "operation", "result"}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      metricDeleteOutcome + "_total",
			Help:      "Record ids removed or rejected by delete requests.",
		}, []string{"entity", "outcome"}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.deletes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Emit is a telemetry emitter feeding the collectors. Register it with
// RegisterTelemetryEmitter.
func (m *Metrics) Emit(_ context.Context, name string, labels map[string]string, value any) {
	v, ok := value.(float64)
	if !ok {
		zap.S().Debugw("dropping non-float telemetry value", "name", name)
		return
	}
	switch name {
	case metricOperationLatency:
		m.operations.With(prometheus.Labels(labels)).Observe(v)
	case metricDeleteOutcome:
		m.deletes.With(prometheus.Labels(labels)).Add(v)
	}
}
