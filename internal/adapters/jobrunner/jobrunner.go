// Package jobrunner connects the task queue to the pipeline orchestrator.
package jobrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/pipeline"
)

// Pipeline runs one job end to end.
type Pipeline interface {
	Run(ctx context.Context, jobID string) (pipeline.Outcome, error)
}

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Consumer core.TaskConsumer // Required: queue to consume
	Pipeline Pipeline          // Required: orchestrator
	Logger   *slog.Logger

	// TaskTimeout bounds a single pipeline run; zero means no bound beyond the consumer context.
	TaskTimeout time.Duration
}

// Runner pulls job ids from the queue and runs the pipeline for each.
type Runner struct {
	consumer    core.TaskConsumer
	pipeline    Pipeline
	logger      *slog.Logger
	taskTimeout time.Duration
}

// NewRunner validates opts and returns a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Consumer == nil {
		return nil, errors.New("task consumer is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		consumer:    opts.Consumer,
		pipeline:    opts.Pipeline,
		logger:      logger.With("component", "jobrunner"),
		taskTimeout: opts.TaskTimeout,
	}, nil
}

// Run consumes tasks until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner")
	err := r.consumer.Consume(ctx, r.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.InfoContext(ctx, "job runner stopped")
	return nil
}

// Handle runs the pipeline for one task. A returned error makes the queue redeliver it.
func (r *Runner) Handle(ctx context.Context, jobID string) error {
	if r.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	outcome, err := r.pipeline.Run(ctx, jobID)
	log := r.logger.With("job_id", jobID, "outcome", outcome, "duration", time.Since(start))
	if err != nil {
		log.ErrorContext(ctx, "pipeline run failed", "error", err)
		return err
	}
	log.InfoContext(ctx, "pipeline run finished")
	return nil
}
