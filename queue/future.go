package queue

import (
	"context"
	"fmt"
)

// Future is anything a task body can return to have the task wait for a
// later result. *Task is a Future.
type Future interface {
	Wait(ctx context.Context) (any, error)
}

// Await waits for f and returns its result as a T.
func Await[T any](ctx context.Context, f Future) (T, error) {
	var zero T
	v, err := f.Wait(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	r, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("queue: result is %T, want %T", v, zero)
	}
	return r, nil
}

// Submit adds a task whose body returns a T. Use Await to read the result.
func Submit[T any](q *Queue, fn func(ctx context.Context, cancelled func() error) (T, error), opts ...TaskOption) (*Task, error) {
	if fn == nil {
		return q.Add(nil, opts...)
	}
	return q.Add(func(ctx context.Context, cancelled func() error) (any, error) {
		return fn(ctx, cancelled)
	}, opts...)
}
