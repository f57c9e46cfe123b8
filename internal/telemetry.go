package internal

import (
	"context"
	"sync"
	"time"

	"github.com/lychee-technology/crm"
)

// telemetry.go
// Hook layer for record service measurements. The default emitter is a
// no-op; binaries register the prometheus-backed emitter from metrics.go.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

const (
	metricOperationLatency = "record_operation_latency_seconds"
	metricDeleteOutcome    = "record_delete_outcomes"
)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter registers a custom emitter function. Passing nil
// restores the no-op emitter.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emitter() telemetryEmitter {
	teleMu.Lock()
	defer teleMu.Unlock()
	return teleImpl
}

// EmitOperation records the latency of one record service call.
// result is "ok" or the error type.
func EmitOperation(ctx context.Context, entity crm.EntityKind, op string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = string(crm.ErrorTypeOf(err))
	}
	labels := map[string]string{"entity": string(entity), "operation": op, "result": result}
	emitter()(ctx, metricOperationLatency, labels, elapsed.Seconds())
}

// EmitDeleteOutcome records how many ids of a delete were removed or failed.
func EmitDeleteOutcome(ctx context.Context, entity crm.EntityKind, deleted, failed int) {
	fn := emitter()
	fn(ctx, metricDeleteOutcome, map[string]string{"entity": string(entity), "outcome": "deleted"}, float64(deleted))
	fn(ctx, metricDeleteOutcome, map[string]string{"entity": string(entity), "outcome": "failed"}, float64(failed))
}
