package queue

import (
	"log/slog"
	"slices"
	"sync/atomic"
)

// EventName identifies a queue event.
type EventName string

const (
	EventTaskAdd     EventName = "task-add"
	EventTaskRemove  EventName = "task-remove"
	EventTaskStart   EventName = "task-start"
	EventTaskEnd     EventName = "task-end"
	EventTaskSuccess EventName = "task-success"
	EventTaskError   EventName = "task-error"
	EventTaskThrown  EventName = "task-thrown"
	EventQueueSize   EventName = "queue-size"
	EventQueueOrder  EventName = "queue-order"
)

var knownEvents = []EventName{
	EventTaskAdd,
	EventTaskRemove,
	EventTaskStart,
	EventTaskEnd,
	EventTaskSuccess,
	EventTaskError,
	EventTaskThrown,
	EventQueueSize,
	EventQueueOrder,
}

// Valid reports whether n is one of the events a Queue emits.
func (n EventName) Valid() bool { return slices.Contains(knownEvents, n) }

// Event is the payload handed to listeners. Which fields are set depends on
// Name: task events carry Task, task-end/task-success carry Value,
// task-end/task-error/task-thrown carry Err, queue-size carries Size and
// queue-order carries Order.
type Event struct {
	Name  EventName
	Task  *Task
	Value any
	Err   error
	Size  int
	Order []*Task
}

// Handler is an event listener.
type Handler func(Event)

// Unsubscribe removes the listener it was returned for. Calling it more than
// once is a no-op. Like Off it returns ErrDestroyed once the queue has been
// destroyed.
type Unsubscribe func() error

type listener struct {
	h    Handler
	once bool
	gone atomic.Bool
}

// delivery is one unit of work handed to the delivery strand: an event for
// listeners or a hook to run in order with events.
type delivery struct {
	event *Event
	fn    func()
}

// On registers h for events named name.
func (q *Queue) On(name EventName, h Handler) (Unsubscribe, error) {
	return q.subscribe(name, h, false)
}

// Once registers h for the next event named name only.
func (q *Queue) Once(name EventName, h Handler) (Unsubscribe, error) {
	return q.subscribe(name, h, true)
}

// Off removes every listener registered for name.
func (q *Queue) Off(name EventName) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return ErrDestroyed
	}
	if !name.Valid() {
		return ErrUnknownEvent
	}
	for _, l := range q.listeners[name] {
		l.gone.Store(true)
	}
	delete(q.listeners, name)
	return nil
}

func (q *Queue) subscribe(name EventName, h Handler, once bool) (Unsubscribe, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return nil, ErrDestroyed
	}
	if !name.Valid() {
		return nil, ErrUnknownEvent
	}
	var l *listener
	if h != nil {
		l = &listener{h: h, once: once}
		q.listeners[name] = append(q.listeners[name], l)
	}
	return func() error {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.destroyed {
			return ErrDestroyed
		}
		if l != nil {
			q.dropListenerLocked(name, l)
		}
		return nil
	}, nil
}

func (q *Queue) dropListenerLocked(name EventName, l *listener) {
	l.gone.Store(true)
	q.listeners[name] = slices.DeleteFunc(q.listeners[name], func(x *listener) bool { return x == l })
}

func (q *Queue) emitLocked(e Event) {
	q.pending = append(q.pending, delivery{event: &e})
}

func (q *Queue) deferLocked(fn func()) {
	q.pending = append(q.pending, delivery{fn: fn})
}

func (q *Queue) observeLocked(fn func(Observer)) {
	if q.obs == nil {
		return
	}
	obs := q.obs
	q.deferLocked(func() { fn(obs) })
}

// emitMembershipLocked reports a task entering or leaving the list.
func (q *Queue) emitMembershipLocked(name EventName, t *Task) {
	size := len(q.tasks)
	q.emitLocked(Event{Name: name, Task: t})
	q.emitLocked(Event{Name: EventQueueSize, Size: size})
	q.emitLocked(Event{Name: EventQueueOrder, Order: slices.Clone(q.tasks)})
	q.observeLocked(func(o Observer) {
		if name == EventTaskAdd {
			o.TaskAdded(q.ctx, t)
		} else {
			o.TaskRemoved(q.ctx, t)
		}
		o.QueueSize(q.ctx, size)
	})
}

// detachLocked drops every listener once the deliveries queued so far have
// gone out.
func (q *Queue) detachLocked() {
	q.deferLocked(func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for _, ls := range q.listeners {
			for _, l := range ls {
				l.gone.Store(true)
			}
		}
		clear(q.listeners)
	})
}

// flush delivers pending work in order. Only one goroutine delivers at a
// time; a caller that finds delivery in progress leaves its items to the
// active deliverer and returns.
func (q *Queue) flush() {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return
	}
	q.flushing = true
	for len(q.pending) > 0 {
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()
		for _, d := range batch {
			q.deliver(d)
		}
		q.mu.Lock()
	}
	q.flushing = false
	q.mu.Unlock()
}

func (q *Queue) deliver(d delivery) {
	if d.fn != nil {
		q.safely("hook", d.fn)
		return
	}
	e := *d.event

	q.mu.Lock()
	ls := slices.Clone(q.listeners[e.Name])
	for _, l := range ls {
		if l.once {
			q.dropListenerLocked(e.Name, l)
		}
	}
	q.mu.Unlock()

	for _, l := range ls {
		if !l.once && l.gone.Load() {
			continue
		}
		ev := e
		if e.Order != nil {
			ev.Order = slices.Clone(e.Order)
		}
		q.safely(string(e.Name), func() { l.h(ev) })
	}
}

func (q *Queue) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Warn("queue: recovered panic during delivery",
				slog.String("event", what),
				slog.Any("panic", r),
			)
		}
	}()
	fn()
}
