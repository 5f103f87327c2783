// Package prom exposes queue activity as Prometheus metrics.
package prom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NetPo4ki/go-taskq/queue"
)

// Metrics is a queue.Observer that is also a prometheus.Collector.
type Metrics struct {
	activeTasks   prometheus.Gauge
	queueSize     prometheus.Gauge
	tasksAdded    prometheus.Counter
	tasksRemoved  prometheus.Counter
	tasksStarted  prometheus.Counter
	tasksFinished *prometheus.CounterVec
	taskDuration  prometheus.Histogram
}

var _ queue.Observer = (*Metrics)(nil)
var _ prometheus.Collector = (*Metrics)(nil)

// New returns metrics whose names are prefixed with namespace, e.g.
// "<namespace>_tasks_started_total". constLabels are attached to every series,
// which lets several queues share a registry.
func New(namespace string, constLabels prometheus.Labels) *Metrics {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Name: name, Help: help, ConstLabels: constLabels}
	}
	return &Metrics{
		activeTasks:  prometheus.NewGauge(prometheus.GaugeOpts(opts("active_tasks", "Tasks currently running."))),
		queueSize:    prometheus.NewGauge(prometheus.GaugeOpts(opts("queue_size", "Waiting and running tasks."))),
		tasksAdded:   prometheus.NewCounter(prometheus.CounterOpts(opts("tasks_added_total", "Tasks submitted."))),
		tasksRemoved: prometheus.NewCounter(prometheus.CounterOpts(opts("tasks_removed_total", "Tasks that left the task list."))),
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts(opts("tasks_started_total", "Tasks started."))),
		tasksFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("tasks_finished_total", "Tasks settled after running, by outcome.")),
			[]string{"outcome"},
		),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "task_duration_seconds",
			Help:        "Time from task start to settlement.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
}

// TaskAdded counts a submission.
func (m *Metrics) TaskAdded(_ context.Context, _ *queue.Task) { m.tasksAdded.Inc() }

// TaskRemoved counts a task leaving the list for any reason.
func (m *Metrics) TaskRemoved(_ context.Context, _ *queue.Task) { m.tasksRemoved.Inc() }

// TaskStarted increments active and started counters.
func (m *Metrics) TaskStarted(_ context.Context, _ *queue.Task) {
	m.activeTasks.Inc()
	m.tasksStarted.Inc()
}

// TaskFinished decrements active, counts the outcome and records duration.
func (m *Metrics) TaskFinished(_ context.Context, _ *queue.Task, dur time.Duration, outcome queue.Outcome, _ error) {
	m.activeTasks.Dec()
	m.tasksFinished.WithLabelValues(outcome.String()).Inc()
	m.taskDuration.Observe(dur.Seconds())
}

// QueueSize tracks the current list length.
func (m *Metrics) QueueSize(_ context.Context, n int) { m.queueSize.Set(float64(n)) }

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.activeTasks, m.queueSize, m.tasksAdded, m.tasksRemoved,
		m.tasksStarted, m.tasksFinished, m.taskDuration,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
