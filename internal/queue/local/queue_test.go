package local

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/mmk-jobpipe/internal/errors"
	"github.com/target/mmk-jobpipe/internal/observability/metrics"
	"github.com/target/mmk-jobpipe/internal/queue"
)

func startConsumer(t *testing.T, q *Queue, handler func(context.Context, string) error) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Consume(ctx, handler) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("consumer did not stop")
		}
	})
	return cancel
}

func TestQueue_DeliversEnqueuedTasks(t *testing.T) {
	rec := metrics.NewRecorder()
	q := New(Options{Concurrency: 3, Metrics: rec})

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	wg.Add(10)
	startConsumer(t, q, func(_ context.Context, jobID string) error {
		mu.Lock()
		seen[jobID]++
		mu.Unlock()
		wg.Done()
		return nil
	})

	for i := range 10 {
		taskID, err := q.Enqueue(context.Background(), "job-"+string(rune('a'+i)))
		require.NoError(t, err)
		assert.NotEmpty(t, taskID)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 10)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, int64(10), rec.Counts(metrics.NameQueueEvent, map[string]string{"event": queue.EventEnqueued}))
}

func TestQueue_RedeliversUntilSuccess(t *testing.T) {
	q := New(Options{MaxDeliveries: 5})

	var calls atomic.Int32
	done := make(chan struct{})
	startConsumer(t, q, func(context.Context, string) error {
		if calls.Add(1) < 3 {
			return errors.New("store unavailable")
		}
		close(done)
		return nil
	})

	_, err := q.Enqueue(context.Background(), "job-1")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task was not redelivered")
	}
	assert.Equal(t, int32(3), calls.Load())

	dead, err := q.DeadLetters(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestQueue_DeadLettersAfterMaxDeliveries(t *testing.T) {
	q := New(Options{MaxDeliveries: 2})

	var calls atomic.Int32
	startConsumer(t, q, func(context.Context, string) error {
		calls.Add(1)
		return errors.New("boom")
	})

	taskID, err := q.Enqueue(context.Background(), "job-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		dead, _ := q.DeadLetters(context.Background(), 10)
		return len(dead) == 1
	}, 5*time.Second, 10*time.Millisecond)

	dead, err := q.DeadLetters(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, taskID, dead[0].TaskID)
	assert.Equal(t, "job-1", dead[0].JobID)
	assert.Equal(t, 2, dead[0].Deliveries)
	assert.Equal(t, "boom", dead[0].LastError)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueue_PanicsAreRedelivered(t *testing.T) {
	q := New(Options{MaxDeliveries: 1})
	startConsumer(t, q, func(context.Context, string) error {
		panic("handler bug")
	})

	_, err := q.Enqueue(context.Background(), "job-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		dead, _ := q.DeadLetters(context.Background(), 10)
		return len(dead) == 1 && dead[0].LastError == "task handler panic: handler bug"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestQueue_RequeueDead(t *testing.T) {
	q := New(Options{MaxDeliveries: 1})
	ctx := context.Background()

	var fail atomic.Bool
	fail.Store(true)
	succeeded := make(chan string, 1)
	startConsumer(t, q, func(_ context.Context, jobID string) error {
		if fail.Load() {
			return errors.New("boom")
		}
		succeeded <- jobID
		return nil
	})

	taskID, err := q.Enqueue(ctx, "job-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		dead, _ := q.DeadLetters(ctx, 10)
		return len(dead) == 1
	}, 5*time.Second, 10*time.Millisecond)

	fail.Store(false)
	require.NoError(t, q.RequeueDead(ctx, taskID))

	select {
	case jobID := <-succeeded:
		assert.Equal(t, "job-1", jobID)
	case <-time.After(5 * time.Second):
		t.Fatal("requeued task was not delivered")
	}
	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestQueue_RequeueDeadUnknownTask(t *testing.T) {
	q := New(Options{})
	err := q.RequeueDead(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestQueue_EnqueueRespectsContextWhenFull(t *testing.T) {
	q := New(Options{Buffer: 1})
	_, err := q.Enqueue(context.Background(), "job-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Enqueue(ctx, "job-2")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_ConsumeRequiresHandler(t *testing.T) {
	require.Error(t, New(Options{}).Consume(context.Background(), nil))
}
