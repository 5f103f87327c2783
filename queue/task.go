package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Func is the body of a task. ctx is cancelled with ErrCancelled as soon as
// the task is cancelled, and cancelled reports that at call time, returning
// ErrCancelled or nil. Returning a Future makes the task wait for it.
type Func func(ctx context.Context, cancelled func() error) (any, error)

// State is a task's position in its lifecycle.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
	// StateCancelled is a task cancelled before it started.
	StateCancelled
	// StateRemoved is a task removed or evicted before it started.
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	case StateRemoved:
		return "removed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Outcome tells how a started task settled.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	// OutcomeError is a returned error, including one from an awaited Future.
	OutcomeError
	// OutcomeThrown is a panic in the body.
	OutcomeThrown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeThrown:
		return "thrown"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

func (o Outcome) event() EventName {
	switch o {
	case OutcomeError:
		return EventTaskError
	case OutcomeThrown:
		return EventTaskThrown
	}
	return EventTaskSuccess
}

// owner is the part of a Queue a Task calls back into.
type owner interface {
	Remove(t *Task) error
	TaskPosition(t *Task) int
	TaskWaitingPosition(t *Task) int
	IsTaskRunning(t *Task) bool
	start(t *Task, force bool) error
	cancel(t *Task)
	finish(t *Task, s settlement)
}

type settlement struct {
	value   any
	err     error
	outcome Outcome
}

// Task is a unit of work owned by a Queue. Tasks are created by Add, Prepend
// and InsertAt.
type Task struct {
	owner owner
	fn    Func
	id    int
	data  map[string]any

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	started   atomic.Bool
	cancelled atomic.Bool
	state     atomic.Int32

	// Guarded by the owning queue's lock.
	settled   bool
	startedAt time.Time

	// Written once before done is closed.
	result settlement
}

func newTask(parent context.Context, o owner, fn Func, cfg taskConfig) *Task {
	ctx, cancel := context.WithCancelCause(parent)
	return &Task{
		owner:  o,
		fn:     fn,
		id:     cfg.id,
		data:   cfg.data,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the generated or caller-supplied id.
func (t *Task) ID() int { return t.id }

// Data returns the data attached with WithData.
func (t *Task) Data() map[string]any { return t.data }

func (t *Task) State() State { return State(t.state.Load()) }

// Outcome returns how the task settled, or OutcomeNone if it has not settled
// or never ran.
func (t *Task) Outcome() Outcome {
	select {
	case <-t.done:
		return t.result.outcome
	default:
		return OutcomeNone
	}
}

// IsCancelled reports whether Cancel has been called.
func (t *Task) IsCancelled() bool { return t.cancelled.Load() }

// Cancel requests cancellation. A task that has not started is removed from
// the queue right away and settles with ErrCancelled. A running task only
// sees its context cancelled; it stays in the queue until its body returns.
func (t *Task) Cancel() { t.owner.cancel(t) }

// Run starts the task now. Unless force is set the queue must have a free
// slot and not be paused; force bypasses only that check.
func (t *Task) Run(force bool) error { return t.owner.start(t, force) }

// Remove takes the task out of its queue without cancelling it.
//
// Deprecated: use Cancel.
func (t *Task) Remove() error { return t.owner.Remove(t) }

// Position returns the index of the task in its queue, or NotFound.
func (t *Task) Position() int { return t.owner.TaskPosition(t) }

// WaitingPosition returns the index among waiting tasks, or NotFound.
func (t *Task) WaitingPosition() int { return t.owner.TaskWaitingPosition(t) }

func (t *Task) IsRunning() bool { return t.owner.IsTaskRunning(t) }

// Done is closed once the task has settled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task settles and returns its result, or until ctx is
// done. Do not call it from an event listener for a task of the same queue.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.result.value, t.result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) String() string { return fmt.Sprintf("task#%d", t.id) }

func (t *Task) probe() error {
	if t.cancelled.Load() {
		return ErrCancelled
	}
	return nil
}

// execute runs the body and reports the settlement. entered is closed right
// before the body is called.
func (t *Task) execute(entered chan<- struct{}) {
	s := t.invoke(entered)
	if s.outcome == OutcomeSuccess {
		if f, ok := s.value.(Future); ok {
			s = await(context.WithoutCancel(t.ctx), f)
		}
	}
	t.owner.finish(t, s)
}

// invoke calls the body. A panic in the body is reported as thrown.
func (t *Task) invoke(entered chan<- struct{}) (s settlement) {
	defer func() {
		if r := recover(); r != nil {
			s = settlement{err: &PanicError{Value: r, Stack: debug.Stack()}, outcome: OutcomeThrown}
		}
	}()
	close(entered)
	v, err := t.fn(t.ctx, t.probe)
	if err != nil {
		return settlement{err: err, outcome: OutcomeError}
	}
	return settlement{value: v, outcome: OutcomeSuccess}
}

// await settles with the result of f. Failures while waiting, panics
// included, are errors rather than thrown outcomes. A nil *Task is a plain
// nil value.
func await(ctx context.Context, f Future) (s settlement) {
	if task, ok := f.(*Task); ok && task == nil {
		return settlement{outcome: OutcomeSuccess}
	}
	defer func() {
		if r := recover(); r != nil {
			s = settlement{err: &PanicError{Value: r, Stack: debug.Stack()}, outcome: OutcomeError}
		}
	}()
	v, err := f.Wait(ctx)
	if err != nil {
		return settlement{err: err, outcome: OutcomeError}
	}
	return settlement{value: v, outcome: OutcomeSuccess}
}
