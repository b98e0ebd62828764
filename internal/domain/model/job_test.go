package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/mmk-jobpipe/internal/errors"
)

func TestJobStatus_Transitions(t *testing.T) {
	all := []JobStatus{
		JobStatusPending, JobStatusRunning, JobStatusRetrying, JobStatusSucceeded, JobStatusFailed,
	}
	allowed := map[JobStatus]map[JobStatus]bool{
		JobStatusPending:  {JobStatusRunning: true},
		JobStatusRunning:  {JobStatusRunning: true, JobStatusRetrying: true, JobStatusSucceeded: true, JobStatusFailed: true},
		JobStatusRetrying: {JobStatusRetrying: true, JobStatusRunning: true, JobStatusSucceeded: true, JobStatusFailed: true},
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestJobStatus_NothingReturnsToPending(t *testing.T) {
	for _, from := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusRetrying, JobStatusSucceeded, JobStatusFailed} {
		assert.False(t, from.CanTransitionTo(JobStatusPending), from)
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.True(t, JobStatusSucceeded.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.False(t, JobStatusRetrying.IsTerminal())
	assert.False(t, JobStatusPending.IsTerminal())
	assert.ElementsMatch(t, []JobStatus{JobStatusSucceeded, JobStatusFailed}, TerminalStatuses())
}

func TestJobStatus_UnmarshalText(t *testing.T) {
	var s JobStatus
	require.NoError(t, s.UnmarshalText([]byte(" retrying ")))
	assert.Equal(t, JobStatusRetrying, s)

	assert.Error(t, s.UnmarshalText([]byte("completed")))
}

func TestStatusUpdate_Validate(t *testing.T) {
	assert.NoError(t, StatusUpdate{Status: JobStatusRunning, Step: StepPtr(StepDeliver)}.Validate())

	err := StatusUpdate{Status: JobStatusPending}.Validate()
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	assert.Error(t, StatusUpdate{Status: "DONE"}.Validate())
	assert.Error(t, StatusUpdate{Status: JobStatusRunning, Step: StepPtr("publish")}.Validate())
}

func TestStatusUpdate_Apply(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(time.Minute)
	first := created.Add(30 * time.Second)
	job := &Job{ID: "j1", Status: JobStatusRunning, CreatedAt: created, UpdatedAt: created, DeliveredAt: &first}

	later := now.Add(time.Hour)
	deliveryID := "d1"
	StatusUpdate{
		Status:            JobStatusSucceeded,
		Step:              StepPtr(StepDeliver),
		Result:            json.RawMessage(`{"ok":true}`),
		DeliveryID:        &deliveryID,
		DeliveredAt:       &later,
		IncrementAttempts: true,
	}.Apply(job, now)

	assert.Equal(t, JobStatusSucceeded, job.Status)
	assert.Equal(t, StepDeliver, *job.CurrentStep)
	assert.JSONEq(t, `{"ok":true}`, string(job.Result))
	assert.Equal(t, "d1", *job.DeliveryID)
	assert.Equal(t, first, *job.DeliveredAt, "delivered_at is never overwritten")
	assert.Equal(t, 1, job.DeliveryAttempts)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, now, *job.CompletedAt)
	assert.Equal(t, now, job.UpdatedAt)
}

func TestStatusUpdate_ApplyFailedLeavesCompletedAtUnset(t *testing.T) {
	job := &Job{Status: JobStatusRunning}
	msg := "Webhook returned status 500"

	StatusUpdate{Status: JobStatusFailed, ErrorMessage: &msg}.Apply(job, time.Now())

	assert.Nil(t, job.CompletedAt)
	assert.Equal(t, msg, *job.ErrorMessage)
}

func TestJob_CloneIsDeep(t *testing.T) {
	step := StepValidate
	orig := &Job{ID: "j1", Payload: json.RawMessage(`{"x":1}`), CurrentStep: &step}

	cp := orig.Clone()
	cp.Payload[2] = 'y'
	*cp.CurrentStep = StepDeliver

	assert.JSONEq(t, `{"x":1}`, string(orig.Payload))
	assert.Equal(t, StepValidate, *orig.CurrentStep)
	assert.Nil(t, (*Job)(nil).Clone())
}

func TestCreateJobRequest_Validate(t *testing.T) {
	valid := func() CreateJobRequest {
		return CreateJobRequest{
			DocID:      "abc",
			Payload:    json.RawMessage(`{"x":1}`),
			WebhookURL: "https://hooks.example.com/callback",
		}
	}

	tests := []struct {
		name      string
		mutate    func(r *CreateJobRequest)
		wantField string
	}{
		{name: "valid", mutate: func(*CreateJobRequest) {}},
		{name: "scalar payload is accepted here", mutate: func(r *CreateJobRequest) { r.Payload = json.RawMessage(`42`) }},
		{name: "idn host", mutate: func(r *CreateJobRequest) { r.WebhookURL = "http://bücher.example/hook" }},
		{name: "empty doc id", mutate: func(r *CreateJobRequest) { r.DocID = "  " }, wantField: "doc_id"},
		{name: "long doc id", mutate: func(r *CreateJobRequest) { r.DocID = strings.Repeat("a", 256) }, wantField: "doc_id"},
		{name: "missing payload", mutate: func(r *CreateJobRequest) { r.Payload = nil }, wantField: "payload"},
		{name: "null payload", mutate: func(r *CreateJobRequest) { r.Payload = json.RawMessage(`null`) }, wantField: "payload"},
		{name: "bad json payload", mutate: func(r *CreateJobRequest) { r.Payload = json.RawMessage(`{"x":`) }, wantField: "payload"},
		{name: "ftp url", mutate: func(r *CreateJobRequest) { r.WebhookURL = "ftp://example.com" }, wantField: "webhook_url"},
		{name: "relative url", mutate: func(r *CreateJobRequest) { r.WebhookURL = "/callback" }, wantField: "webhook_url"},
		{name: "no host", mutate: func(r *CreateJobRequest) { r.WebhookURL = "https:///x" }, wantField: "webhook_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.wantField, apperrors.GetField(err))
		})
	}
}

func TestNewJobStatusResponse(t *testing.T) {
	now := time.Now().UTC()
	msg := "boom"
	job := &Job{
		ID:               "j1",
		DocID:            "abc",
		Status:           JobStatusFailed,
		ErrorMessage:     &msg,
		CurrentStep:      StepPtr(StepValidate),
		CreatedAt:        now,
		UpdatedAt:        now,
		DeliveryAttempts: 2,
	}

	resp := NewJobStatusResponse(job)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "j1", decoded["job_id"])
	assert.Equal(t, "FAILED", decoded["status"])
	assert.Equal(t, "validate", decoded["current_step"])
	assert.Equal(t, "boom", decoded["error_message"])
	assert.InDelta(t, 2, decoded["delivery_attempts"], 0)
	assert.NotContains(t, decoded, "result")
	assert.NotContains(t, decoded, "completed_at")
}
