package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/observability/metrics"
	"github.com/target/mmk-jobpipe/internal/observability/statsd"
)

// RedriverOptions groups dependencies for Redriver.
type RedriverOptions struct {
	Store   core.JobStore         // Required: job store
	Queue   core.TaskQueue        // Required: task queue
	Config  config.RedriverConfig // Required: redriver configuration
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink (StatsD-compatible)
	Now     func() time.Time      // Optional: clock override for tests
}

// Redriver re-enqueues non-terminal jobs that stopped making progress, such as jobs
// whose worker crashed with a task the queue lost. Re-running a job is safe because
// the pipeline skips work already recorded in the store.
type Redriver struct {
	store   core.JobStore
	queue   core.TaskQueue
	config  config.RedriverConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewRedriver constructs a new Redriver.
func NewRedriver(opts RedriverOptions) (*Redriver, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("TaskQueue is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Redriver{
		store:   opts.Store,
		queue:   opts.Queue,
		config:  cfg,
		logger:  logger.With("component", "redriver"),
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Run redrives stale jobs every interval until ctx is canceled.
// Returns nil on graceful shutdown.
func (r *Redriver) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting redriver",
		"interval", r.config.Interval, "stale_after", r.config.StaleAfter, "batch_size", r.config.BatchSize)

	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RedriveOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "redrive failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "redriver stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RedriveOnce enqueues one batch of stale jobs and returns how many were enqueued.
func (r *Redriver) RedriveOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.config.StaleAfter)
	jobs, err := r.store.ListStale(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	var errs []error
	enqueued := 0
	for _, job := range jobs {
		taskID, err := r.queue.Enqueue(ctx, job.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", job.ID, err))
			continue
		}
		enqueued++
		if err := r.store.RecordDispatch(ctx, job.ID, taskID); err != nil {
			r.logger.WarnContext(ctx, "failed to record redrive dispatch", "job_id", job.ID, "task_id", taskID, "error", err)
		}
		r.logger.InfoContext(ctx, "redrove stale job",
			"job_id", job.ID, "status", job.Status, "updated_at", job.UpdatedAt, "task_id", taskID)
	}

	metrics.EmitRedriven(r.metrics, enqueued)
	return enqueued, errors.Join(errs...)
}

// waitWithJitter delays up to 10% of the interval so replicas do not tick together.
func (r *Redriver) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		r.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
