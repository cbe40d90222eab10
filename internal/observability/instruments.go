package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Instruments are the spans and counters the engine records.
type Instruments struct {
	tracer trace.Tracer

	operations  metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
	transitions metric.Int64Counter
	expired     metric.Int64Counter
	otpFailures metric.Int64Counter
	capacity    metric.Int64Counter
}

func NewInstruments(tracer trace.Tracer, meter metric.Meter) (*Instruments, error) {
	i := &Instruments{tracer: tracer}
	var err error

	if i.operations, err = meter.Int64Counter("staffing.operations.total",
		metric.WithDescription("Engine operations started"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	if i.failures, err = meter.Int64Counter("staffing.operations.failed",
		metric.WithDescription("Engine operations that returned an error"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	if i.duration, err = meter.Float64Histogram("staffing.operation.duration",
		metric.WithDescription("Engine operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5)); err != nil {
		return nil, err
	}
	if i.transitions, err = meter.Int64Counter("staffing.transitions.total",
		metric.WithDescription("Committed entity state transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if i.expired, err = meter.Int64Counter("staffing.expired.total",
		metric.WithDescription("Entities moved to Expired"),
		metric.WithUnit("{entity}")); err != nil {
		return nil, err
	}
	if i.otpFailures, err = meter.Int64Counter("staffing.otp.failures.total",
		metric.WithDescription("Rejected OTP verifications"),
		metric.WithUnit("{attempt}")); err != nil {
		return nil, err
	}
	if i.capacity, err = meter.Int64Counter("staffing.capacity.rejected.total",
		metric.WithDescription("Approvals refused by the capacity gate"),
		metric.WithUnit("{approval}")); err != nil {
		return nil, err
	}
	return i, nil
}

// Noop returns instruments that record nothing.
func Noop() *Instruments {
	i, _ := NewInstruments(tracenoop.NewTracerProvider().Tracer(""), metricnoop.NewMeterProvider().Meter(""))
	return i
}

// Track starts a span for op and counts it. The returned func ends the span
// and records duration and outcome.
func (i *Instruments) Track(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	attrs := metric.WithAttributes(kv("op", op))

	ctx, span := i.tracer.Start(ctx, "engine."+op, trace.WithSpanKind(trace.SpanKindInternal))
	i.operations.Add(ctx, 1, attrs)

	return ctx, func(err error) {
		i.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			i.failures.Add(ctx, 1, attrs)
		}
		span.End()
	}
}

func (i *Instruments) Transition(ctx context.Context, entity, to string) {
	i.transitions.Add(ctx, 1, metric.WithAttributes(kv("entity", entity), kv("to", to)))
}

func (i *Instruments) Expired(ctx context.Context, entity string) {
	i.expired.Add(ctx, 1, metric.WithAttributes(kv("entity", entity)))
}

func (i *Instruments) OTPFailure(ctx context.Context, reason string) {
	i.otpFailures.Add(ctx, 1, metric.WithAttributes(kv("reason", reason)))
}

func (i *Instruments) CapacityRejected(ctx context.Context) {
	i.capacity.Add(ctx, 1)
}
