package queue

import "log/slog"

type Option func(*Options)

type Options struct {
	Concurrency int
	Paused      bool
	Observer    Observer
	Logger      *slog.Logger
}

func defaultOptions() Options { return Options{Concurrency: 1} }

// WithConcurrency sets how many tasks may run at once. Values below 1 mean 1.
func WithConcurrency(n int) Option { return func(o *Options) { o.Concurrency = n } }

// WithPaused creates the queue in the paused state.
func WithPaused(v bool) Option { return func(o *Options) { o.Paused = v } }

func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

// TaskOption configures a single task at submission time.
type TaskOption func(*taskConfig)

type taskConfig struct {
	id    int
	hasID bool
	data  map[string]any
}

// WithID replaces the generated task id with a caller-supplied one.
func WithID(id int) TaskOption {
	return func(c *taskConfig) {
		c.id = id
		c.hasID = true
	}
}

// WithData attaches caller data to the task. The queue only hands it to
// Filter and CancelBy predicates.
func WithData(data map[string]any) TaskOption { return func(c *taskConfig) { c.data = data } }
