// Package storetest holds behavioural checks shared by every JobStore backend.
package storetest

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
	"github.com/target/mmk-jobpipe/internal/testutil"
)

// Factory builds an empty store whose clock is driven by tp.
type Factory func(t *testing.T, tp *testutil.TestTimeProvider) core.JobStore

// MissingID is a well-formed id that no backend will ever generate.
const MissingID = "00000000-0000-0000-0000-000000000000"

// Run exercises the JobStore contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s core.JobStore, tp *testutil.TestTimeProvider)
	}{
		{"CreateIsIdempotentOnDocID", createIsIdempotent},
		{"ConcurrentCreateYieldsOneJob", concurrentCreate},
		{"NotFound", notFound},
		{"TransitionsAreEnforced", transitionsEnforced},
		{"UpdateAppliesFieldsAtomically", updateApplies},
		{"AssignDeliveryIDKeepsFirst", assignDeliveryID},
		{"MarkDeliveredAtMostOnce", markDeliveredOnce},
		{"ListStaleSkipsTerminalAndFresh", listStale},
		{"PipelineKeepsFieldInvariants", pipelineFieldInvariants},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tp := testutil.NewTestTimeProvider(testutil.TestTime())
			tc.fn(t, newStore(t, tp), tp)
		})
	}
}

func create(t *testing.T, s core.JobStore, docID string) *model.Job {
	t.Helper()
	job, isNew, err := s.CreateJob(context.Background(), docID, json.RawMessage(`{"n":1}`), "https://example.com/hook")
	require.NoError(t, err)
	require.True(t, isNew)
	return job
}

func createIsIdempotent(t *testing.T, s core.JobStore, _ *testutil.TestTimeProvider) {
	ctx := context.Background()
	job := create(t, s, "doc")
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Zero(t, job.DeliveryAttempts)
	assert.Equal(t, testutil.TestTime(), job.CreatedAt.UTC())

	again, isNew, err := s.CreateJob(ctx, "doc", json.RawMessage(`{"n":2}`), "https://other.example.com")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, job.ID, again.ID)
	assert.JSONEq(t, `{"n":1}`, string(again.Payload))

	byDoc, err := s.GetJobByDocID(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, job.ID, byDoc.ID)
}

func concurrentCreate(t *testing.T, s core.JobStore, _ *testutil.TestTimeProvider) {
	var created atomic.Int32
	ids := make(chan string, 16)
	errs := testutil.RunConcurrent(testutil.Repeat(16, func() error {
		job, isNew, err := s.CreateJob(context.Background(), "race", json.RawMessage(`{}`), "https://example.com")
		if err != nil {
			return err
		}
		if isNew {
			created.Add(1)
		}
		ids <- job.ID
		return nil
	})...)
	close(ids)

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), created.Load())
	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
}

func notFound(t *testing.T, s core.JobStore, _ *testutil.TestTimeProvider) {
	ctx := context.Background()

	_, err := s.GetJob(ctx, MissingID)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = s.GetJobByDocID(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
	err = s.UpdateStatus(ctx, MissingID, model.StatusUpdate{Status: model.JobStatusRunning})
	assert.True(t, apperrors.IsNotFound(err))
	err = s.RecordDispatch(ctx, MissingID, "task")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = s.AssignDeliveryID(ctx, MissingID, "d")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = s.MarkDelivered(ctx, MissingID, time.Now())
	assert.True(t, apperrors.IsNotFound(err))
}

func transitionsEnforced(t *testing.T, s core.JobStore, _ *testutil.TestTimeProvider) {
	ctx := context.Background()
	job := create(t, s, "transitions")

	err := s.UpdateStatus(ctx, job.ID, model.StatusUpdate{Status: model.JobStatusSucceeded})
	assert.True(t, apperrors.IsConflict(err), "PENDING cannot jump to SUCCEEDED")

	err = s.UpdateStatus(ctx, job.ID, model.StatusUpdate{Status: model.JobStatusPending})
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, s.UpdateStatus(ctx, job.ID, model.StatusUpdate{Status: model.JobStatusRunning}))
	require.NoError(t, s.UpdateStatus(ctx, job.ID, model.StatusUpdate{
		Status:       model.JobStatusFailed,
		ErrorMessage: testutil.StringPtr("boom"),
	}))

	for _, next := range []model.JobStatus{model.JobStatusRunning, model.JobStatusRetrying, model.JobStatusSucceeded, model.JobStatusFailed} {
		err = s.UpdateStatus(ctx, job.ID, model.StatusUpdate{Status: next})
		assert.Truef(t, apperrors.IsConflict(err), "FAILED -> %s must conflict", next)
	}

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func updateApplies(t *testing.T, s core.JobStore, tp *testutil.TestTimeProvider) {
	ctx := context.Background()
	job := create(t, s, "fields")

	require.NoError(t, s.UpdateStatus(ctx, job.ID, model.StatusUpdate{
		Status: model.JobStatusRunning,
		Step:   model.StepPtr(model.StepTransform),
	}))
	require.NoError(t, s.UpdateStatus(ctx, job.ID, model.StatusUpdate{
		Status:            model.JobStatusRetrying,
		Step:              model.StepPtr(model.StepDeliver),
		IncrementAttempts: true,
	}))
	require.NoError(t, s.UpdateStatus(ctx, job.ID, model.StatusUpdate{
		Status:            model.JobStatusRetrying,
		IncrementAttempts: true,
	}))

	tp.AddTime(time.Minute)
	first := tp.Now()
	later := first.Add(time.Hour)
	require.NoError(t, s.UpdateStatus(ctx, job.ID, model.StatusUpdate{
		Status:      model.JobStatusSucceeded,
		Result:      json.RawMessage(`{"job_id":"x"}`),
		DeliveryID:  testutil.StringPtr("delivery"),
		DeliveredAt: &first,
	}))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, got.Status)
	require.NotNil(t, got.CurrentStep)
	assert.Equal(t, model.StepDeliver, *got.CurrentStep)
	assert.JSONEq(t, `{"job_id":"x"}`, string(got.Result))
	assert.Equal(t, 2, got.DeliveryAttempts)
	assert.Nil(t, got.ErrorMessage)
	require.NotNil(t, got.DeliveryID)
	assert.Equal(t, "delivery", *got.DeliveryID)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, first.Equal(*got.DeliveredAt))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, tp.Now().Equal(*got.CompletedAt))
	assert.True(t, tp.Now().Equal(got.UpdatedAt))

	// delivered_at is write-once even through UpdateStatus.
	_, err = s.MarkDelivered(ctx, job.ID, later)
	require.NoError(t, err)
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(*got.DeliveredAt))
}

func assignDeliveryID(t *testing.T, s core.JobStore, _ *testutil.TestTimeProvider) {
	ctx := context.Background()
	job := create(t, s, "assign")

	id, err := s.AssignDeliveryID(ctx, job.ID, "first")
	require.NoError(t, err)
	assert.Equal(t, "first", id)

	id, err = s.AssignDeliveryID(ctx, job.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "first", id)
}

func markDeliveredOnce(t *testing.T, s core.JobStore, _ *testutil.TestTimeProvider) {
	job := create(t, s, "mark")

	var claimed atomic.Int32
	errs := testutil.RunConcurrent(testutil.Repeat(12, func() error {
		ok, err := s.MarkDelivered(context.Background(), job.ID, time.Now())
		if ok {
			claimed.Add(1)
		}
		return err
	})...)
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), claimed.Load())
}

func listStale(t *testing.T, s core.JobStore, tp *testutil.TestTimeProvider) {
	ctx := context.Background()

	stale := create(t, s, "stale")
	older := create(t, s, "older")
	done := create(t, s, "done")
	require.NoError(t, s.UpdateStatus(ctx, done.ID, model.StatusUpdate{Status: model.JobStatusRunning}))
	require.NoError(t, s.UpdateStatus(ctx, done.ID, model.StatusUpdate{Status: model.JobStatusFailed}))

	tp.AddTime(time.Second)
	require.NoError(t, s.UpdateStatus(ctx, stale.ID, model.StatusUpdate{Status: model.JobStatusRunning}))

	tp.AddTime(10 * time.Minute)
	fresh := create(t, s, "fresh")
	require.NoError(t, s.RecordDispatch(ctx, fresh.ID, "task-1"))

	jobs, err := s.ListStale(ctx, tp.Now().Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, older.ID, jobs[0].ID)
	assert.Equal(t, stale.ID, jobs[1].ID)

	jobs, err = s.ListStale(ctx, tp.Now().Add(-5*time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	got, err := s.GetJob(ctx, fresh.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DispatchTaskID)
	assert.Equal(t, "task-1", *got.DispatchTaskID)
}
