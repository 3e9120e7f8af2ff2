package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Recorder traces and counts workflow operations. Every operation gets a
// span and is counted in af.workflow.* metrics.
type Recorder struct {
	tracer trace.Tracer
	ops    metric.Int64Counter
	errs   metric.Int64Counter
	dur    metric.Float64Histogram
}

// NewRecorder binds to the current global providers; call it after Init.
func NewRecorder(scope string) *Recorder {
	m := Meter(scope)
	ops, _ := m.Int64Counter("af.workflow.operations",
		metric.WithDescription("Total workflow operations executed"),
	)
	errs, _ := m.Int64Counter("af.workflow.errors",
		metric.WithDescription("Total workflow operations that returned an error"),
	)
	dur, _ := m.Float64Histogram("af.workflow.operation.duration",
		metric.WithDescription("Workflow operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &Recorder{tracer: Tracer(scope), ops: ops, errs: errs, dur: dur}
}

// Start opens a span for the named operation. The returned func ends it and
// records err, if any.
func (r *Recorder) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	all := append([]attribute.KeyValue{attribute.String("af.operation", name)}, attrs...)
	ctx, span := r.tracer.Start(ctx, "workflow."+name, trace.WithAttributes(all...))
	r.ops.Add(ctx, 1, metric.WithAttributes(all...))
	start := time.Now()
	return ctx, func(err error) {
		r.dur.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(all...))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.errs.Add(ctx, 1, metric.WithAttributes(all...))
		}
		span.End()
	}
}
