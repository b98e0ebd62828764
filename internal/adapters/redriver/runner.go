// Package redriver provides the adapter that runs the stale-job redriver loop.
package redriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/observability/statsd"
	"github.com/target/mmk-jobpipe/internal/service"
)

// Runner constructs the redriver service and runs its loop.
type Runner struct {
	redriver *service.Redriver
	logger   *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Store   core.JobStore
	Queue   core.TaskQueue
	Config  config.RedriverConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// NewRunner creates a new redriver runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	redriver, err := service.NewRedriver(service.RedriverOptions{
		Store:   opts.Store,
		Queue:   opts.Queue,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire redriver service: %w", err)
	}

	return &Runner{redriver: redriver, logger: opts.Logger}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Store == nil {
		return errors.New("job store is required")
	}
	if opts.Queue == nil {
		return errors.New("task queue is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the redriver loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting redriver runner")
	return r.redriver.Run(ctx)
}
