// Package redisqueue is a durable TaskQueue on Redis lists.
//
// Workers claim tasks with BLMOVE from pending to processing and acknowledge them
// with LREM after the handler returns. A claim carries a visibility deadline; a
// reclaim loop moves tasks whose deadline passed back to pending, so a crashed
// worker's task is delivered again.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-jobpipe/internal/core"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
	"github.com/target/mmk-jobpipe/internal/observability/metrics"
	"github.com/target/mmk-jobpipe/internal/observability/statsd"
	"github.com/target/mmk-jobpipe/internal/queue"
)

const backendName = "redis"

var (
	_ core.TaskQueue       = (*Queue)(nil)
	_ core.TaskConsumer    = (*Queue)(nil)
	_ core.DeadLetterAdmin = (*Queue)(nil)
	_ core.HealthChecker   = (*Queue)(nil)
)

// ErrTaskNotFound is returned by RequeueDead for a task id that is not dead-lettered.
var ErrTaskNotFound = apperrors.NotFound("dead-lettered task not found")

// Options configures a Queue.
type Options struct {
	Client            redis.UniversalClient
	KeyPrefix         string
	Concurrency       int
	MaxDeliveries     int
	VisibilityTimeout time.Duration
	ReclaimInterval   time.Duration
	RedeliveryDelay   time.Duration
	// ClaimTimeout bounds each blocking BLMOVE so workers notice shutdown.
	ClaimTimeout time.Duration
	Metrics      statsd.Sink
	Logger       *slog.Logger
	Now          func() time.Time
}

// Queue implements core.TaskQueue, core.TaskConsumer and core.DeadLetterAdmin on Redis.
type Queue struct {
	client        redis.UniversalClient
	keys          keys
	concurrency   int
	maxDeliveries int
	visibility    time.Duration
	reclaimEvery  time.Duration
	delay         time.Duration
	claimTimeout  time.Duration
	metrics       statsd.Sink
	logger        *slog.Logger
	now           func() time.Time
}

// New validates opts and returns a Queue.
func New(opts Options) (*Queue, error) {
	if opts.Client == nil {
		return nil, errors.New("redisqueue: client is required")
	}
	q := &Queue{
		client:        opts.Client,
		keys:          keys{prefix: opts.KeyPrefix},
		concurrency:   opts.Concurrency,
		maxDeliveries: opts.MaxDeliveries,
		visibility:    opts.VisibilityTimeout,
		reclaimEvery:  opts.ReclaimInterval,
		delay:         opts.RedeliveryDelay,
		claimTimeout:  opts.ClaimTimeout,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if q.keys.prefix == "" {
		q.keys.prefix = "jobpipe"
	}
	if q.concurrency <= 0 {
		q.concurrency = 1
	}
	if q.maxDeliveries <= 0 {
		q.maxDeliveries = 1
	}
	if q.visibility <= 0 {
		q.visibility = 30 * time.Minute
	}
	if q.reclaimEvery <= 0 {
		q.reclaimEvery = 30 * time.Second
	}
	if q.claimTimeout <= 0 {
		q.claimTimeout = time.Second
	}
	if q.logger == nil {
		q.logger = slog.Default().With("component", "redis_queue")
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q, nil
}

// MustNew is New that panics on error.
func MustNew(opts Options) *Queue {
	q, err := New(opts)
	if err != nil {
		panic(err)
	}
	return q
}

// Ping checks the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue writes the task hash and pushes the task id onto pending in one transaction.
func (q *Queue) Enqueue(ctx context.Context, jobID string) (string, error) {
	taskID := uuid.NewString()
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.keys.task(taskID),
			fieldJobID, jobID,
			fieldDeliveries, 0,
			fieldEnqueuedAt, q.now().UnixMilli(),
		)
		pipe.LPush(ctx, q.keys.pending(), taskID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redisqueue: enqueue: %w", err)
	}
	metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventEnqueued})
	return taskID, nil
}

// Consume runs concurrency workers plus the reclaim loop until ctx is done.
func (q *Queue) Consume(ctx context.Context, handler core.TaskHandler) error {
	if handler == nil {
		return errors.New("redisqueue: handler is required")
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range q.concurrency {
		g.Go(func() error { return q.work(gctx, handler, i) })
	}
	g.Go(func() error { return q.reclaimLoop(gctx) })

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (q *Queue) work(ctx context.Context, handler core.TaskHandler, worker int) error {
	log := q.logger.With("worker", worker)
	for ctx.Err() == nil {
		taskID, err := q.claim(ctx)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.ErrorContext(ctx, "claim failed", "error", err)
			if !sleepCtx(ctx, q.claimTimeout) {
				return nil
			}
			continue
		}
		q.process(ctx, log, handler, taskID)
	}
	return nil
}

// claim moves one task to processing and stamps its visibility deadline.
func (q *Queue) claim(ctx context.Context) (string, error) {
	taskID, err := q.client.BLMove(ctx, q.keys.pending(), q.keys.processing(), "RIGHT", "LEFT", q.claimTimeout).Result()
	if err != nil {
		return "", err
	}

	now := q.now()
	bg := context.WithoutCancel(ctx)
	_, err = q.client.TxPipelined(bg, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(bg, q.keys.task(taskID), fieldDeliveries, 1)
		pipe.HSet(bg, q.keys.task(taskID),
			fieldClaimedAt, now.UnixMilli(),
			fieldVisibleAt, now.Add(q.visibility).UnixMilli(),
		)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redisqueue: stamp claim %s: %w", taskID, err)
	}
	return taskID, nil
}

func (q *Queue) process(ctx context.Context, log *slog.Logger, handler core.TaskHandler, taskID string) {
	bg := context.WithoutCancel(ctx)
	fields, err := q.client.HMGet(bg, q.keys.task(taskID), fieldJobID, fieldDeliveries).Result()
	if err != nil {
		log.ErrorContext(ctx, "load task failed", "task_id", taskID, "error", err)
		return
	}
	jobID, _ := fields[0].(string)
	deliveries, _ := strconv.Atoi(asString(fields[1]))
	if jobID == "" {
		log.WarnContext(ctx, "dropping task without job id", "task_id", taskID)
		q.ack(bg, log, taskID)
		return
	}
	if deliveries > q.maxDeliveries {
		q.deadLetter(bg, log, taskID, jobID, deliveries, "max deliveries exceeded")
		return
	}

	handleErr := queue.SafeHandle(ctx, handler, jobID)
	switch {
	case handleErr == nil:
		q.ack(bg, log, taskID)
	case deliveries >= q.maxDeliveries:
		q.deadLetter(bg, log, taskID, jobID, deliveries, handleErr.Error())
	default:
		q.nack(bg, log, taskID, jobID, handleErr)
	}
}

func (q *Queue) ack(ctx context.Context, log *slog.Logger, taskID string) {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.keys.processing(), 1, taskID)
		pipe.Del(ctx, q.keys.task(taskID))
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "ack failed", "task_id", taskID, "error", err)
		return
	}
	metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventAcked})
}

// nack leaves the task in processing with a short visibility deadline so the reclaim
// loop hands it out again after the redelivery delay.
func (q *Queue) nack(ctx context.Context, log *slog.Logger, taskID, jobID string, cause error) {
	err := q.client.HSet(ctx, q.keys.task(taskID),
		fieldLastError, cause.Error(),
		fieldVisibleAt, q.now().Add(q.delay).UnixMilli(),
	).Err()
	if err != nil {
		log.ErrorContext(ctx, "nack failed", "task_id", taskID, "error", err)
		return
	}
	log.WarnContext(ctx, "task failed, will redeliver",
		"task_id", taskID, "job_id", jobID, "error", cause, "delay", q.delay)
	metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventRedelivered})
	if q.delay <= 0 {
		if _, moveErr := q.reclaimOne(ctx, taskID); moveErr != nil {
			log.ErrorContext(ctx, "immediate redelivery failed", "task_id", taskID, "error", moveErr)
		}
	}
}

func (q *Queue) deadLetter(ctx context.Context, log *slog.Logger, taskID, jobID string, deliveries int, reason string) {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.keys.processing(), 1, taskID)
		pipe.HSet(ctx, q.keys.task(taskID),
			fieldLastError, reason,
			fieldFailedAt, q.now().UnixMilli(),
		)
		pipe.HDel(ctx, q.keys.task(taskID), fieldVisibleAt)
		pipe.LPush(ctx, q.keys.dead(), taskID)
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "dead-letter failed", "task_id", taskID, "error", err)
		return
	}
	log.ErrorContext(ctx, "task dead-lettered",
		"task_id", taskID, "job_id", jobID, "deliveries", deliveries, "error", reason)
	metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventDeadLettered})
}

func (q *Queue) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(q.reclaimEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := q.Reclaim(ctx); err != nil {
				q.logger.ErrorContext(ctx, "reclaim failed", "error", err)
			} else if n > 0 {
				q.logger.InfoContext(ctx, "reclaimed expired tasks", "count", n)
			}
		}
	}
}

// Reclaim moves every processing task whose visibility deadline has passed back to pending.
func (q *Queue) Reclaim(ctx context.Context) (int, error) {
	ids, err := q.client.LRange(ctx, q.keys.processing(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redisqueue: list processing: %w", err)
	}

	now := q.now().UnixMilli()
	moved := 0
	for _, id := range ids {
		raw, getErr := q.client.HGet(ctx, q.keys.task(id), fieldVisibleAt).Result()
		if getErr != nil && !errors.Is(getErr, redis.Nil) {
			return moved, fmt.Errorf("redisqueue: read task %s: %w", id, getErr)
		}
		// A task with no deadline was claimed but not yet stamped.
		visibleAt, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || visibleAt > now {
			continue
		}
		ok, moveErr := q.reclaimOne(ctx, id)
		if moveErr != nil {
			return moved, moveErr
		}
		if ok {
			moved++
			metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventReclaimed})
		}
	}
	return moved, nil
}

func (q *Queue) reclaimOne(ctx context.Context, taskID string) (bool, error) {
	n, err := reclaimScript.Run(ctx, q.client,
		[]string{q.keys.processing(), q.keys.pending(), q.keys.task(taskID)}, taskID).Int()
	if err != nil {
		return false, fmt.Errorf("redisqueue: reclaim %s: %w", taskID, err)
	}
	return n == 1, nil
}

// DeadLetters returns up to limit dead-lettered tasks, most recent first.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]core.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := q.client.LRange(ctx, q.keys.dead(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisqueue: list dead letters: %w", err)
	}

	out := make([]core.DeadLetter, 0, len(ids))
	for _, id := range ids {
		vals, getErr := q.client.HGetAll(ctx, q.keys.task(id)).Result()
		if getErr != nil {
			return nil, fmt.Errorf("redisqueue: read dead letter %s: %w", id, getErr)
		}
		out = append(out, deadLetterFromHash(id, vals))
	}
	return out, nil
}

// RequeueDead resets a dead-lettered task's delivery count and puts it back on pending.
func (q *Queue) RequeueDead(ctx context.Context, taskID string) error {
	n, err := requeueDeadScript.Run(ctx, q.client,
		[]string{q.keys.dead(), q.keys.pending(), q.keys.task(taskID)}, taskID).Int()
	if err != nil {
		return fmt.Errorf("redisqueue: requeue %s: %w", taskID, err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	metrics.EmitQueueEvent(q.metrics, metrics.QueueMetric{Backend: backendName, Event: queue.EventRequeued})
	return nil
}

// Depth reports the lengths of the pending, processing and dead lists.
func (q *Queue) Depth(ctx context.Context) (pending, processing, dead int64, err error) {
	cmds, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LLen(ctx, q.keys.pending())
		pipe.LLen(ctx, q.keys.processing())
		pipe.LLen(ctx, q.keys.dead())
		return nil
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("redisqueue: depth: %w", err)
	}
	return cmds[0].(*redis.IntCmd).Val(), cmds[1].(*redis.IntCmd).Val(), cmds[2].(*redis.IntCmd).Val(), nil
}

func deadLetterFromHash(id string, vals map[string]string) core.DeadLetter {
	dl := core.DeadLetter{
		TaskID:    id,
		JobID:     vals[fieldJobID],
		LastError: vals[fieldLastError],
	}
	dl.Deliveries, _ = strconv.Atoi(vals[fieldDeliveries])
	if ms, err := strconv.ParseInt(vals[fieldFailedAt], 10, 64); err == nil {
		dl.FailedAt = time.UnixMilli(ms).UTC()
	}
	return dl
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
