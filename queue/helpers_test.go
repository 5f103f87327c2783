package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newQueue(optFns ...Option) *Queue {
	return New(context.Background(), append([]Option{WithLogger(quiet)}, optFns...)...)
}

func mustAdd(t *testing.T, q *Queue, fn Func, opts ...TaskOption) *Task {
	t.Helper()
	task, err := q.Add(fn, opts...)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	return task
}

func waitQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("queue did not drain: %v", err)
	}
}

func waitTask(t *testing.T, task *Task) (any, error) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("%v did not settle", task)
	}
	return task.Wait(context.Background())
}

func value(v any) Func {
	return func(context.Context, func() error) (any, error) { return v, nil }
}

// gated returns a body that blocks until the returned channel is closed.
func gated(v any) (Func, chan struct{}) {
	gate := make(chan struct{})
	return func(context.Context, func() error) (any, error) {
		<-gate
		return v, nil
	}, gate
}

// journal is a goroutine-safe ordered log of strings.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) get() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

func (j *journal) expect(t *testing.T, want ...string) {
	t.Helper()
	if got := j.get(); !slices.Equal(got, want) {
		t.Fatalf("unexpected journal:\n got: %s\nwant: %s", strings.Join(got, ", "), strings.Join(want, ", "))
	}
}

func ids(tasks []*Task) string {
	parts := make([]string, 0, len(tasks))
	for _, task := range tasks {
		parts = append(parts, fmt.Sprint(task.ID()))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// recordEvents subscribes to every event and writes them to a journal.
func recordEvents(t *testing.T, q *Queue) *journal {
	t.Helper()
	j := &journal{}
	for _, name := range knownEvents {
		if _, err := q.On(name, func(e Event) {
			switch e.Name {
			case EventQueueSize:
				j.add("%s %d", e.Name, e.Size)
			case EventQueueOrder:
				j.add("%s %s", e.Name, ids(e.Order))
			default:
				j.add("%s %d", e.Name, e.Task.ID())
			}
		}); err != nil {
			t.Fatalf("on %s: %v", name, err)
		}
	}
	return j
}
