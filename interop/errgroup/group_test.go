package errgroup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	xerrgroup "golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWithContextHappy(t *testing.T) {
	t.Parallel()
	g, _ := WithContext(context.Background())
	g.Go(func() error { return nil })
	g.Go(func() error { time.Sleep(10 * time.Millisecond); return nil })
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithContextErrorCancels(t *testing.T) {
	t.Parallel()
	g, gctx := WithContext(context.Background())
	done := make(chan struct{})
	boom := errors.New("boom")
	g.Go(func() error { return boom })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			close(done)
			return nil
		case <-time.After(250 * time.Millisecond):
			return errors.New("expected cancel propagation")
		}
	})
	if err := g.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	select {
	case <-done:
	case <-time.After(150 * time.Millisecond):
		t.Fatal("ctx was not canceled")
	}
	if !errors.Is(context.Cause(gctx), boom) {
		t.Fatalf("expected cause boom, got %v", context.Cause(gctx))
	}
}

func TestWithContextParentDeadline(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	g, gctx := WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})
	if err := g.Wait(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestWithContextParentCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})
	cancel()
	if err := g.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitCancelsContext(t *testing.T) {
	t.Parallel()
	g, gctx := WithContext(context.Background())
	g.Go(func() error { return nil })
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if gctx.Err() == nil {
		t.Fatal("context still live after Wait")
	}
}

func TestSetLimitBoundsRunning(t *testing.T) {
	t.Parallel()
	g, _ := WithContext(context.Background())
	g.SetLimit(2)
	var active, peak atomic.Int32
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if peak.Load() != 2 {
		t.Fatalf("expected peak 2, got %d", peak.Load())
	}
}

func TestSetLimitZeroHolds(t *testing.T) {
	t.Parallel()
	g, _ := WithContext(context.Background())
	g.SetLimit(0)
	var ran atomic.Bool
	g.Go(func() error { ran.Store(true); return nil })
	time.Sleep(10 * time.Millisecond)
	if ran.Load() || g.Queue().Size() != 1 {
		t.Fatal("function ran with a zero limit")
	}
	g.SetLimit(-1)
	if err := g.Wait(); err != nil || !ran.Load() {
		t.Fatalf("function did not run after the limit was lifted: %v", err)
	}
}

func TestFailureDropsWaitingFunctions(t *testing.T) {
	t.Parallel()
	g, _ := WithContext(context.Background())
	g.SetLimit(1)
	boom := errors.New("boom")
	var ran atomic.Int32
	gate := make(chan struct{})
	g.Go(func() error { <-gate; return boom })
	for i := 0; i < 3; i++ {
		g.Go(func() error { ran.Add(1); return nil })
	}
	close(gate)
	if err := g.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ran.Load() != 0 {
		t.Fatalf("%d waiting functions ran after failure", ran.Load())
	}
}

// The adapter reports the same first error as x/sync for the same workload.
func TestMatchesXSync(t *testing.T) {
	t.Parallel()
	first := errors.New("first")
	second := errors.New("second")
	work := []func(ctx context.Context) error{
		func(context.Context) error { return nil },
		func(context.Context) error { return first },
		func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(200 * time.Millisecond):
				return second
			}
		},
	}

	xg, xctx := xerrgroup.WithContext(context.Background())
	for _, w := range work {
		xg.Go(func() error { return w(xctx) })
	}
	want := xg.Wait()

	g, gctx := WithContext(context.Background())
	for _, w := range work {
		g.Go(func() error { return w(gctx) })
	}
	got := g.Wait()

	if !errors.Is(want, first) || !errors.Is(got, first) {
		t.Fatalf("x/sync returned %v, adapter returned %v", want, got)
	}
	if (xctx.Err() == nil) != (gctx.Err() == nil) {
		t.Fatal("context states differ after Wait")
	}
}
