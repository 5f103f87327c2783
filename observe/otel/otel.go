package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/NetPo4ki/go-taskq/queue"
)

// instrumentationName is the tracer and meter scope name.
const instrumentationName = "github.com/NetPo4ki/go-taskq"

type config struct {
	tp trace.TracerProvider
	mp metric.MeterProvider
}

type Option func(*config)

// WithTracerProvider overrides the global TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) Option { return func(c *config) { c.tp = tp } }

// WithMeterProvider overrides the global MeterProvider.
func WithMeterProvider(mp metric.MeterProvider) Option { return func(c *config) { c.mp = mp } }

// Observer implements queue.Observer on top of OpenTelemetry.
type Observer struct {
	tracer     trace.Tracer
	executions metric.Int64Counter
	duration   metric.Float64Histogram
	active     metric.Int64UpDownCounter
	size       metric.Int64Gauge

	mu    sync.Mutex
	spans map[*queue.Task]trace.Span
}

var _ queue.Observer = (*Observer)(nil)

// New creates an observer. Without options the global providers are used,
// which are no-ops until the application installs real ones.
func New(opts ...Option) *Observer {
	c := config{tp: otel.GetTracerProvider(), mp: otel.GetMeterProvider()}
	for _, fn := range opts {
		fn(&c)
	}
	meter := c.mp.Meter(instrumentationName)

	// Instrument constructors fall back to no-op instruments on error.
	executions, _ := meter.Int64Counter("taskq.task.executions",
		metric.WithDescription("Tasks settled after running"),
		metric.WithUnit("{execution}"),
	)
	duration, _ := meter.Float64Histogram("taskq.task.duration",
		metric.WithDescription("Time from task start to settlement"),
		metric.WithUnit("s"),
	)
	active, _ := meter.Int64UpDownCounter("taskq.tasks.active",
		metric.WithDescription("Tasks currently running"),
		metric.WithUnit("{task}"),
	)
	size, _ := meter.Int64Gauge("taskq.queue.size",
		metric.WithDescription("Waiting and running tasks"),
		metric.WithUnit("{task}"),
	)
	return &Observer{
		tracer:     c.tp.Tracer(instrumentationName),
		executions: executions,
		duration:   duration,
		active:     active,
		size:       size,
		spans:      make(map[*queue.Task]trace.Span),
	}
}

// TaskAdded opens the task span.
func (o *Observer) TaskAdded(ctx context.Context, t *queue.Task) {
	_, span := o.tracer.Start(ctx, "taskq.task",
		trace.WithAttributes(attribute.Int("taskq.task.id", t.ID())),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	o.mu.Lock()
	o.spans[t] = span
	o.mu.Unlock()
}

func (o *Observer) TaskStarted(ctx context.Context, t *queue.Task) {
	o.active.Add(ctx, 1)
	if span := o.span(t, false); span != nil {
		span.AddEvent("started")
	}
}

func (o *Observer) TaskFinished(ctx context.Context, t *queue.Task, dur time.Duration, outcome queue.Outcome, err error) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome.String()))
	o.active.Add(ctx, -1)
	o.executions.Add(ctx, 1, attrs)
	o.duration.Record(ctx, dur.Seconds(), attrs)

	span := o.span(t, true)
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String("taskq.task.outcome", outcome.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TaskRemoved ends the span of a task that left before running. A running
// task that was removed keeps its span until it finishes.
func (o *Observer) TaskRemoved(_ context.Context, t *queue.Task) {
	switch t.State() {
	case queue.StateRemoved, queue.StateCancelled:
		if span := o.span(t, true); span != nil {
			span.SetAttributes(attribute.String("taskq.task.state", t.State().String()))
			span.SetStatus(codes.Unset, "")
			span.End()
		}
	default:
		if span := o.span(t, false); span != nil {
			span.AddEvent("removed")
		}
	}
}

func (o *Observer) QueueSize(ctx context.Context, n int) {
	o.size.Record(ctx, int64(n))
}

func (o *Observer) span(t *queue.Task, take bool) trace.Span {
	o.mu.Lock()
	defer o.mu.Unlock()
	span, ok := o.spans[t]
	if !ok {
		return nil
	}
	if take {
		delete(o.spans, t)
	}
	return span
}
