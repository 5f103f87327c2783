// Package otel provides an OpenTelemetry observer for queues. Each task gets
// a span from submission to settlement with events for start and removal,
// and executions, durations, active tasks and queue size are recorded as
// metrics.
package otel
