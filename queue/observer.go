package queue

import (
	"context"
	"time"
)

// Observer receives lifecycle callbacks from a Queue. Calls are delivered in
// the same order as events, from whichever goroutine is delivering, and keep
// arriving after Destroy for tasks that were still running. Implementations
// must be safe for concurrent use and must not block.
type Observer interface {
	TaskAdded(ctx context.Context, t *Task)
	TaskStarted(ctx context.Context, t *Task)
	TaskFinished(ctx context.Context, t *Task, dur time.Duration, outcome Outcome, err error)
	TaskRemoved(ctx context.Context, t *Task)
	QueueSize(ctx context.Context, n int)
}
