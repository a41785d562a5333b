package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxTestKey struct{}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "noop"}))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueReportsExhaustedJobs(t *testing.T) {
	var mu sync.Mutex
	var failed []Job
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		return errors.New("permanent")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		OnFailure: func(job Job, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, job)
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.TryEnqueue(Job{ID: "x", Type: "audit"}))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1)
	assert.Equal(t, "x", failed[0].ID)
	assert.Equal(t, 2, failed[0].Attempt)
}

func TestQueueTryEnqueueFull(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.TryEnqueue(Job{ID: "1"}))
	// Wait until the worker holds job 1 so the buffer is empty again.
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{ID: "2"}))
	err := q.TryEnqueue(Job{ID: "3"})
	require.ErrorIs(t, err, ErrQueueFull)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
}

func TestQueueRejectsWhenStopped(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	err := q.TryEnqueue(Job{ID: "1"})
	require.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueuePassesJobContextValues(t *testing.T) {
	seen := make(chan interface{}, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		seen <- ctx.Value(ctxTestKey{})
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	reqCtx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxTestKey{}, "req-1"))
	cancel()
	require.NoError(t, q.Enqueue(Job{ID: "1", Ctx: reqCtx}))

	select {
	case v := <-seen:
		assert.Equal(t, "req-1", v)
	case <-time.After(time.Second):
		t.Fatal("job not processed")
	}
}
