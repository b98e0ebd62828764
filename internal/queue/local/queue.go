// Package local is an in-process TaskQueue backed by a buffered channel and an errgroup
// worker pool. Tasks do not survive a restart; the redriver re-enqueues stranded jobs.
package local

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-jobpipe/internal/core"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
	"github.com/target/mmk-jobpipe/internal/observability/metrics"
	"github.com/target/mmk-jobpipe/internal/observability/statsd"
	"github.com/target/mmk-jobpipe/internal/queue"
)

const backendName = "local"

var (
	_ core.TaskQueue       = (*Queue)(nil)
	_ core.TaskConsumer    = (*Queue)(nil)
	_ core.DeadLetterAdmin = (*Queue)(nil)
	_ core.HealthChecker   = (*Queue)(nil)
)

// ErrTaskNotFound is returned by RequeueDead for an unknown task id.
var ErrTaskNotFound = apperrors.NotFound("dead-lettered task not found")

// Options configures a Queue.
type Options struct {
	// Buffer is the channel capacity. Enqueue blocks when it is full.
	Buffer          int
	Concurrency     int
	MaxDeliveries   int
	RedeliveryDelay time.Duration
	Metrics         statsd.Sink
	Logger          *slog.Logger
}

type task struct {
	id         string
	jobID      string
	deliveries int
}

// Queue is a bounded in-memory task queue.
type Queue struct {
	tasks         chan task
	concurrency   int
	maxDeliveries int
	delay         time.Duration
	metrics       statsd.Sink
	logger        *slog.Logger

	mu       sync.Mutex
	dead     []core.DeadLetter
	inflight sync.WaitGroup
}

// New returns a Queue. Zero-valued options fall back to one worker, one delivery and a 1024 buffer.
func New(opts Options) *Queue {
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "local_queue")
	}
	return &Queue{
		tasks:         make(chan task, opts.Buffer),
		concurrency:   opts.Concurrency,
		maxDeliveries: opts.MaxDeliveries,
		delay:         opts.RedeliveryDelay,
		metrics:       opts.Metrics,
		logger:        logger,
	}
}

// Enqueue adds jobID to the queue and returns the new task id.
func (q *Queue) Enqueue(ctx context.Context, jobID string) (string, error) {
	t := task{id: uuid.NewString(), jobID: jobID}
	if err := q.push(ctx, t); err != nil {
		return "", err
	}
	metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventEnqueued})
	return t.id, nil
}

func (q *Queue) push(ctx context.Context, t task) error {
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume runs handler on the worker pool until ctx is done.
func (q *Queue) Consume(ctx context.Context, handler core.TaskHandler) error {
	if handler == nil {
		return errors.New("local queue: handler is required")
	}

	g, gctx := errgroup.WithContext(ctx)
	for range q.concurrency {
		g.Go(func() error {
			q.work(gctx, handler)
			return nil
		})
	}
	err := g.Wait()
	q.inflight.Wait()
	return err
}

func (q *Queue) work(ctx context.Context, handler core.TaskHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			q.handle(ctx, handler, t)
		}
	}
}

func (q *Queue) handle(ctx context.Context, handler core.TaskHandler, t task) {
	t.deliveries++
	err := queue.SafeHandle(ctx, handler, t.jobID)
	if err == nil {
		metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventAcked})
		return
	}

	if t.deliveries >= q.maxDeliveries {
		q.deadLetter(t, err)
		return
	}

	q.logger.WarnContext(ctx, "task failed, redelivering",
		"task_id", t.id, "job_id", t.jobID, "deliveries", t.deliveries, "error", err)
	metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventRedelivered})

	q.inflight.Add(1)
	go func() {
		defer q.inflight.Done()
		if q.delay > 0 {
			timer := time.NewTimer(q.delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				q.logger.Info("queue stopped before redelivery, dropping task", "task_id", t.id, "job_id", t.jobID)
				return
			}
		}
		if pushErr := q.push(ctx, t); pushErr != nil {
			q.logger.Info("queue stopped before redelivery, dropping task", "task_id", t.id, "job_id", t.jobID)
		}
	}()
}

func (q *Queue) deadLetter(t task, cause error) {
	dl := core.DeadLetter{
		TaskID:     t.id,
		JobID:      t.jobID,
		Deliveries: t.deliveries,
		FailedAt:   time.Now().UTC(),
	}
	if cause != nil {
		dl.LastError = cause.Error()
	}

	q.mu.Lock()
	q.dead = append(q.dead, dl)
	q.mu.Unlock()

	q.logger.Error("task dead-lettered",
		"task_id", t.id, "job_id", t.jobID, "deliveries", t.deliveries, "error", dl.LastError)
	metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventDeadLettered})
}

// DeadLetters returns up to limit dead-lettered tasks, oldest first.
func (q *Queue) DeadLetters(_ context.Context, limit int) ([]core.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := slices.Clone(q.dead)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RequeueDead moves a dead-lettered task back onto the queue with a fresh delivery count.
func (q *Queue) RequeueDead(ctx context.Context, taskID string) error {
	q.mu.Lock()
	idx := slices.IndexFunc(q.dead, func(d core.DeadLetter) bool { return d.TaskID == taskID })
	if idx < 0 {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	dl := q.dead[idx]
	q.dead = slices.Delete(q.dead, idx, idx+1)
	q.mu.Unlock()

	if err := q.push(ctx, task{id: dl.TaskID, jobID: dl.JobID}); err != nil {
		q.mu.Lock()
		q.dead = append(q.dead, dl)
		q.mu.Unlock()
		return err
	}
	metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventRequeued})
	return nil
}

// Len reports the number of tasks waiting in the buffer.
func (q *Queue) Len() int { return len(q.tasks) }

// Ping always succeeds.
func (q *Queue) Ping(context.Context) error { return nil }
