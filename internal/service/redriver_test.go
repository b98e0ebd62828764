package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	"github.com/target/mmk-jobpipe/internal/mocks"
	"github.com/target/mmk-jobpipe/internal/observability/metrics"
	"github.com/target/mmk-jobpipe/internal/testutil"
)

func newTestRedriver(t *testing.T) (*Redriver, *mocks.MockJobStore, *mocks.MockTaskQueue, *metrics.Recorder) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobStore(ctrl)
	queue := mocks.NewMockTaskQueue(ctrl)
	rec := metrics.NewRecorder()
	r, err := NewRedriver(RedriverOptions{
		Store:   store,
		Queue:   queue,
		Config:  config.RedriverConfig{Interval: time.Minute, StaleAfter: 15 * time.Minute, BatchSize: 50},
		Metrics: rec,
		Now:     testutil.TestTime,
	})
	require.NoError(t, err)
	return r, store, queue, rec
}

func TestRedriver_RedriveOnce(t *testing.T) {
	r, store, queue, rec := newTestRedriver(t)
	ctx := context.Background()
	cutoff := testutil.TestTime().Add(-15 * time.Minute)

	stale := []*model.Job{
		{ID: "job-1", Status: model.JobStatusPending},
		{ID: "job-2", Status: model.JobStatusRetrying},
	}
	store.EXPECT().ListStale(ctx, cutoff, 50).Return(stale, nil)
	queue.EXPECT().Enqueue(ctx, "job-1").Return("task-1", nil)
	store.EXPECT().RecordDispatch(ctx, "job-1", "task-1").Return(nil)
	queue.EXPECT().Enqueue(ctx, "job-2").Return("task-2", nil)
	store.EXPECT().RecordDispatch(ctx, "job-2", "task-2").Return(nil)

	n, err := r.RedriveOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), rec.Counts(metrics.NameRedriven, nil))
}

func TestRedriver_ContinuesPastEnqueueErrors(t *testing.T) {
	r, store, queue, _ := newTestRedriver(t)
	ctx := context.Background()

	store.EXPECT().ListStale(ctx, gomock.Any(), 50).Return([]*model.Job{{ID: "job-1"}, {ID: "job-2"}}, nil)
	queue.EXPECT().Enqueue(ctx, "job-1").Return("", errors.New("broker down"))
	queue.EXPECT().Enqueue(ctx, "job-2").Return("task-2", nil)
	store.EXPECT().RecordDispatch(ctx, "job-2", "task-2").Return(nil)

	n, err := r.RedriveOnce(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job-1")
	assert.Equal(t, 1, n)
}

func TestRedriver_ListError(t *testing.T) {
	r, store, _, _ := newTestRedriver(t)
	store.EXPECT().ListStale(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	n, err := r.RedriveOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestRedriver_RunStopsOnCancel(t *testing.T) {
	r, store, _, _ := newTestRedriver(t)
	store.EXPECT().ListStale(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("redriver did not stop")
	}
}

func TestNewRedriver_SanitizesConfig(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, err := NewRedriver(RedriverOptions{
		Store: mocks.NewMockJobStore(ctrl),
		Queue: mocks.NewMockTaskQueue(ctrl),
	})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, r.config.Interval)
	assert.Equal(t, time.Minute, r.config.StaleAfter)
	assert.Equal(t, 1, r.config.BatchSize)
}
