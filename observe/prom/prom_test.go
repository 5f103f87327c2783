package prom

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/NetPo4ki/go-taskq/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMetricsFollowQueue(t *testing.T) {
	t.Parallel()
	m := New("taskq", prometheus.Labels{"queue": "test"})
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(m))

	q := queue.New(context.Background(),
		queue.WithConcurrency(2),
		queue.WithObserver(m),
		queue.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	gate := make(chan struct{})
	blocked, err := q.Add(func(context.Context, func() error) (any, error) {
		<-gate
		return nil, nil
	})
	require.NoError(t, err)
	_, err = q.Add(func(context.Context, func() error) (any, error) { return nil, errors.New("boom") })
	require.NoError(t, err)
	_, err = q.Add(func(context.Context, func() error) (any, error) { panic("bad") })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.queueSize) == 1 && testutil.ToFloat64(m.activeTasks) == 1
	}, time.Second, time.Millisecond)

	close(gate)
	_, err = blocked.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Wait(ctx))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.tasksAdded))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tasksStarted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tasksRemoved))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeTasks))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queueSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksFinished.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksFinished.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksFinished.WithLabelValues("thrown")))

	n, err := testutil.GatherAndCount(reg, "taskq_task_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetricsLint(t *testing.T) {
	t.Parallel()
	problems, err := testutil.CollectAndLint(New("taskq", nil))
	require.NoError(t, err)
	assert.Empty(t, problems)
}
