package queue

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"
)

// NotFound is the position reported for tasks that are not in the list.
const NotFound = -1

// FilterFunc selects tasks by their data and current status.
type FilterFunc func(data map[string]any, running, cancelled bool) bool

// DestroyInfo lists what Destroy did with the tasks it found.
type DestroyInfo struct {
	// Removed holds the tasks that had not started, in queue order.
	Removed []*Task
	// InProgress holds the tasks that were running and keep running.
	InProgress []*Task
}

// Queue runs submitted tasks with at most Concurrency of them at once.
type Queue struct {
	ctx    context.Context
	opts   Options
	obs    Observer
	logger *slog.Logger

	mu          sync.Mutex
	concurrency int
	paused      bool
	destroyed   bool
	tasks       []*Task // waiting and running, in order
	running     []*Task // in start order
	nextID      int
	listeners   map[EventName][]*listener
	pending     []delivery
	flushing    bool
}

// New creates a queue. Task contexts derive from parent.
func New(parent context.Context, optFns ...Option) *Queue {
	if parent == nil {
		parent = context.Background()
	}
	q := &Queue{ctx: parent, opts: defaultOptions(), listeners: make(map[EventName][]*listener)}
	for _, fn := range optFns {
		fn(&q.opts)
	}
	q.concurrency = max(q.opts.Concurrency, 1)
	q.paused = q.opts.Paused
	q.obs = q.opts.Observer
	q.logger = q.opts.Logger
	if q.logger == nil {
		q.logger = slog.Default()
	}
	return q
}

// Add appends a task to the end of the queue.
func (q *Queue) Add(fn Func, opts ...TaskOption) (*Task, error) {
	return q.insert(fn, math.MaxInt, opts)
}

// Push is an alias for Add.
func (q *Queue) Push(fn Func, opts ...TaskOption) (*Task, error) { return q.Add(fn, opts...) }

// Prepend puts a task at the front of the queue.
func (q *Queue) Prepend(fn Func, opts ...TaskOption) (*Task, error) {
	return q.insert(fn, 0, opts)
}

// Unshift is an alias for Prepend.
func (q *Queue) Unshift(fn Func, opts ...TaskOption) (*Task, error) { return q.Prepend(fn, opts...) }

// InsertAt puts a task at index of the full task list. Running tasks count
// towards the index, so with two tasks running InsertAt(fn, 2) makes fn the
// next task to start. Out of range indexes are clamped to the list bounds.
func (q *Queue) InsertAt(fn Func, index int, opts ...TaskOption) (*Task, error) {
	return q.insert(fn, index, opts)
}

func (q *Queue) insert(fn Func, index int, opts []TaskOption) (*Task, error) {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return nil, ErrDestroyed
	}
	if fn == nil {
		q.mu.Unlock()
		return nil, ErrNilFunc
	}
	t := q.newTaskLocked(fn, opts)
	index = min(max(index, 0), len(q.tasks))
	q.tasks = slices.Insert(q.tasks, index, t)
	q.emitMembershipLocked(EventTaskAdd, t)
	q.runNextLocked()
	q.mu.Unlock()

	q.flush()
	return t, nil
}

func (q *Queue) newTaskLocked(fn Func, opts []TaskOption) *Task {
	var cfg taskConfig
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.hasID {
		q.nextID++
		cfg.id = q.nextID
	}
	return newTask(q.ctx, q, fn, cfg)
}

// Remove takes t out of the queue without cancelling it. A running task keeps
// running until it settles on its own; a waiting task settles with ErrRemoved.
func (q *Queue) Remove(t *Task) error {
	q.mu.Lock()
	err := q.removeTaskLocked(t)
	q.mu.Unlock()

	q.flush()
	return err
}

func (q *Queue) removeTaskLocked(t *Task) error {
	if q.destroyed {
		return ErrDestroyed
	}
	if t == nil || t.owner != owner(q) {
		return ErrForeignTask
	}
	if !q.evictLocked(t, ErrRemoved) {
		return ErrTaskNotFound
	}
	q.runNextLocked()
	return nil
}

// evictLocked removes t from the list. A task that never started settles
// with cause.
func (q *Queue) evictLocked(t *Task, cause error) bool {
	if !q.removeLocked(t) {
		return false
	}
	if !t.started.Load() && !t.settled {
		t.state.Store(int32(StateRemoved))
		q.settleLocked(t, settlement{err: cause})
	}
	return true
}

func (q *Queue) removeLocked(t *Task) bool {
	i := slices.Index(q.tasks, t)
	if i == NotFound {
		return false
	}
	q.tasks = slices.Delete(q.tasks, i, i+1)
	q.emitMembershipLocked(EventTaskRemove, t)
	return true
}

// settleLocked records the final result of t. The result becomes visible to
// waiters after every delivery queued before it.
func (q *Queue) settleLocked(t *Task, s settlement) {
	t.settled = true
	t.result = s
	t.cancel(errSettled)
	q.deferLocked(func() { close(t.done) })
}

// Size returns the number of waiting and running tasks. It keeps working
// after Destroy.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Tasks returns a copy of the task list, waiting and running, in order.
func (q *Queue) Tasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.tasks)
}

// Filter returns the tasks for which pred returns true, in queue order.
func (q *Queue) Filter(pred FilterFunc) []*Task {
	type candidate struct {
		t       *Task
		running bool
	}
	q.mu.Lock()
	cs := make([]candidate, 0, len(q.tasks))
	for _, t := range q.tasks {
		cs = append(cs, candidate{t: t, running: q.isRunningLocked(t)})
	}
	q.mu.Unlock()

	var out []*Task
	for _, c := range cs {
		if pred(c.t.data, c.running, c.t.IsCancelled()) {
			out = append(out, c.t)
		}
	}
	return out
}

// CancelBy cancels every task matched by pred and returns them.
func (q *Queue) CancelBy(pred FilterFunc) []*Task {
	tasks := q.Filter(pred)
	for _, t := range tasks {
		t.Cancel()
	}
	return tasks
}

// TaskPosition returns the index of t in the full task list, or NotFound.
func (q *Queue) TaskPosition(t *Task) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Index(q.tasks, t)
}

// TaskWaitingPosition returns the index of t among tasks that have not
// started yet; 0 means t starts next. Running and absent tasks report
// NotFound.
func (q *Queue) TaskWaitingPosition(t *Task) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos := 0
	for _, x := range q.tasks {
		if q.isRunningLocked(x) {
			continue
		}
		if x == t {
			return pos
		}
		pos++
	}
	return NotFound
}

// IsTaskRunning reports whether t is currently executing.
func (q *Queue) IsTaskRunning(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isRunningLocked(t)
}

func (q *Queue) isRunningLocked(t *Task) bool { return slices.Contains(q.running, t) }

// Destroy evicts every waiting task, detaches all listeners and leaves
// running tasks alone. Afterwards the queue refuses every mutation; cancel
// the returned InProgress tasks to wind them down.
func (q *Queue) Destroy() (DestroyInfo, error) {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return DestroyInfo{}, ErrDestroyed
	}
	q.destroyed = true
	q.detachLocked()

	var removed []*Task
	for _, t := range slices.Clone(q.tasks) {
		if t.started.Load() {
			continue
		}
		q.evictLocked(t, ErrDestroyed)
		removed = append(removed, t)
	}
	info := DestroyInfo{Removed: removed, InProgress: slices.Clone(q.running)}
	q.mu.Unlock()

	q.flush()
	q.logger.Debug("queue destroyed",
		slog.Int("removed", len(info.Removed)),
		slog.Int("in_progress", len(info.InProgress)),
	)
	return info, nil
}

// Wait blocks until the queue holds no tasks and nothing it started is
// still running, or until ctx is done. A running task taken out with Remove
// is still waited for.
func (q *Queue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		tasks := slices.Clone(q.tasks)
		for _, t := range q.running {
			if !slices.Contains(tasks, t) {
				tasks = append(tasks, t)
			}
		}
		q.mu.Unlock()
		if len(tasks) == 0 {
			return nil
		}
		for _, t := range tasks {
			select {
			case <-t.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (q *Queue) start(t *Task, force bool) error {
	q.mu.Lock()
	err := q.tryStartLocked(t, force)
	q.mu.Unlock()

	q.flush()
	return err
}

func (q *Queue) tryStartLocked(t *Task, force bool) error {
	switch {
	case t.cancelled.Load():
		return ErrAlreadyCancelled
	case t.started.Load():
		return ErrAlreadyStarted
	case q.destroyed:
		return ErrTaskQueueDestroyed
	case !slices.Contains(q.tasks, t):
		return ErrTaskNotFound
	case !force && !q.admitsLocked():
		return ErrNoFreeSlot
	}
	q.startLocked(t)
	return nil
}

func (q *Queue) startLocked(t *Task) {
	t.started.Store(true)
	t.state.Store(int32(StateRunning))
	t.startedAt = time.Now()
	q.running = append(q.running, t)
	q.emitLocked(Event{Name: EventTaskStart, Task: t})
	q.observeLocked(func(o Observer) { o.TaskStarted(q.ctx, t) })
	q.deferLocked(func() {
		q.logger.Debug("task started", slog.Int("task_id", t.id))
		// Bodies are entered in start order.
		entered := make(chan struct{})
		go t.execute(entered)
		<-entered
	})
}

func (q *Queue) cancel(t *Task) {
	q.mu.Lock()
	if !t.cancelled.CompareAndSwap(false, true) {
		q.mu.Unlock()
		return
	}
	t.cancel(ErrCancelled)
	if !t.started.Load() && !t.settled {
		q.removeLocked(t)
		t.state.Store(int32(StateCancelled))
		q.settleLocked(t, settlement{err: ErrCancelled})
		q.runNextLocked()
	}
	q.mu.Unlock()

	q.flush()
}

// finish is called once by the task goroutine when the body has settled.
func (q *Queue) finish(t *Task, s settlement) {
	q.mu.Lock()
	elapsed := time.Since(t.startedAt)
	q.running = slices.DeleteFunc(q.running, func(x *Task) bool { return x == t })
	if s.err != nil {
		t.state.Store(int32(StateFailed))
	} else {
		t.state.Store(int32(StateSucceeded))
	}
	q.emitLocked(Event{Name: EventTaskEnd, Task: t, Value: s.value, Err: s.err})
	q.emitLocked(Event{Name: s.outcome.event(), Task: t, Value: s.value, Err: s.err})
	q.observeLocked(func(o Observer) { o.TaskFinished(q.ctx, t, elapsed, s.outcome, s.err) })
	q.removeLocked(t)
	q.runNextLocked()
	q.settleLocked(t, s)
	q.mu.Unlock()

	q.flush()
	if s.err != nil {
		q.logger.Debug("task finished",
			slog.Int("task_id", t.id),
			slog.String("outcome", s.outcome.String()),
			slog.Duration("elapsed", elapsed),
			slog.String("error", s.err.Error()),
		)
		return
	}
	q.logger.Debug("task finished",
		slog.Int("task_id", t.id),
		slog.String("outcome", s.outcome.String()),
		slog.Duration("elapsed", elapsed),
	)
}
