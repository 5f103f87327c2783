// Package errgroup offers the golang.org/x/sync/errgroup API on top of a
// task queue, so code written against errgroup can gain queue semantics
// (FIFO admission, observers, events) without being rewritten.
//
// Go never blocks. When a limit is set, functions beyond it wait in the
// queue and are dropped without running once the group has failed.
package errgroup

import (
	"context"
	"math"
	"sync"

	"github.com/NetPo4ki/go-taskq/queue"
)

// Group is an errgroup-like wrapper over queue.Queue. Use WithContext to
// create one.
type Group struct {
	q      *queue.Queue
	cancel context.CancelCauseFunc

	once sync.Once
	mu   sync.Mutex
	err  error
}

// WithContext creates a Group bound to ctx. The returned context is canceled
// when any function passed to Go returns a non-nil error or when Wait returns.
// Extra options configure the underlying queue; its concurrency starts
// unlimited.
func WithContext(ctx context.Context, opts ...queue.Option) (*Group, context.Context) {
	gctx, cancel := context.WithCancelCause(ctx)
	opts = append([]queue.Option{queue.WithConcurrency(math.MaxInt)}, opts...)
	g := &Group{q: queue.New(gctx, opts...), cancel: cancel}
	return g, gctx
}

// Queue exposes the underlying queue for introspection and subscriptions.
func (g *Group) Queue() *queue.Queue { return g.q }

// SetLimit bounds the number of functions running at once. A negative value
// removes the limit and zero holds every new function until the limit is
// raised.
func (g *Group) SetLimit(n int) {
	switch {
	case n == 0:
		_ = g.q.Pause()
		return
	case n < 0:
		n = math.MaxInt
	}
	_ = g.q.SetConcurrency(n)
	_ = g.q.Unpause()
}

// Go queues f. The first non-nil error cancels the group context and every
// function that has not finished yet.
func (g *Group) Go(f func() error) {
	if f == nil {
		return
	}
	_, err := g.q.Add(func(context.Context, func() error) (any, error) {
		if err := f(); err != nil {
			g.fail(err)
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		g.fail(err)
	}
}

// Wait blocks until all queued functions have settled and returns the first
// non-nil error.
func (g *Group) Wait() error {
	_ = g.q.Wait(context.Background())
	g.mu.Lock()
	err := g.err
	g.mu.Unlock()
	g.cancel(err)
	return err
}

func (g *Group) fail(err error) {
	g.once.Do(func() {
		g.mu.Lock()
		g.err = err
		g.mu.Unlock()
		g.cancel(err)
		g.q.CancelBy(func(map[string]any, bool, bool) bool { return true })
	})
}
