package jobrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/pipeline"
	"github.com/target/mmk-jobpipe/internal/queue/local"
)

type pipelineFunc func(ctx context.Context, jobID string) (pipeline.Outcome, error)

func (f pipelineFunc) Run(ctx context.Context, jobID string) (pipeline.Outcome, error) {
	return f(ctx, jobID)
}

type consumerFunc func(ctx context.Context, h core.TaskHandler) error

func (f consumerFunc) Consume(ctx context.Context, h core.TaskHandler) error { return f(ctx, h) }

func TestRunner_HandlePropagatesErrors(t *testing.T) {
	runErr := errors.New("store unavailable")
	r, err := NewRunner(RunnerOptions{
		Consumer: consumerFunc(func(context.Context, core.TaskHandler) error { return nil }),
		Pipeline: pipelineFunc(func(_ context.Context, jobID string) (pipeline.Outcome, error) {
			if jobID == "bad" {
				return pipeline.OutcomeError, runErr
			}
			return pipeline.OutcomeSucceeded, nil
		}),
	})
	require.NoError(t, err)

	require.NoError(t, r.Handle(context.Background(), "good"))
	require.ErrorIs(t, r.Handle(context.Background(), "bad"), runErr)
}

func TestRunner_HandleAppliesTaskTimeout(t *testing.T) {
	r, err := NewRunner(RunnerOptions{
		Consumer:    consumerFunc(func(context.Context, core.TaskHandler) error { return nil }),
		TaskTimeout: 10 * time.Millisecond,
		Pipeline: pipelineFunc(func(ctx context.Context, _ string) (pipeline.Outcome, error) {
			<-ctx.Done()
			return pipeline.OutcomeError, ctx.Err()
		}),
	})
	require.NoError(t, err)

	require.ErrorIs(t, r.Handle(context.Background(), "slow"), context.DeadlineExceeded)
}

func TestRunner_RunConsumesLocalQueue(t *testing.T) {
	q := local.New(local.Options{Concurrency: 2})
	ran := make(chan string, 1)
	r, err := NewRunner(RunnerOptions{
		Consumer: q,
		Pipeline: pipelineFunc(func(_ context.Context, jobID string) (pipeline.Outcome, error) {
			ran <- jobID
			return pipeline.OutcomeSucceeded, nil
		}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	_, err = q.Enqueue(ctx, "job-1")
	require.NoError(t, err)
	select {
	case id := <-ran:
		assert.Equal(t, "job-1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not run")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestNewRunner_RequiresDependencies(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
	_, err = NewRunner(RunnerOptions{Consumer: local.New(local.Options{})})
	require.Error(t, err)
}
