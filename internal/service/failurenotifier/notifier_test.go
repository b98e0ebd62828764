package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobpipe/internal/domain/model"
	"github.com/target/mmk-jobpipe/internal/observability/notify"
)

type captureSink struct {
	mu       sync.Mutex
	payloads []notify.JobFailurePayload
	ctxErr   error
}

func (c *captureSink) SendJobFailure(ctx context.Context, p notify.JobFailurePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
	c.ctxErr = ctx.Err()
	return nil
}

func TestServiceNotifyJobFailure(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "capture", Sink: sink}}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123"})

	require.Len(t, sink.payloads, 1)
	assert.Equal(t, notify.SeverityCritical, sink.payloads[0].Severity)
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "nil"}}})
	assert.False(t, svc.Enabled())

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
	nilSvc.NotifyFailedJob(context.Background(), &model.Job{}, "")
}

func TestServiceSinkErrorsAreContained(t *testing.T) {
	other := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
			return errors.New("boom")
		})},
		{Name: "ok", Sink: other},
	}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123"})
	assert.Len(t, other.payloads, 1)
}

func TestServiceSurvivesCanceledCaller(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "capture", Sink: sink}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.NotifyJobFailure(ctx, notify.JobFailurePayload{JobID: "123"})

	require.Len(t, sink.payloads, 1)
	assert.NoError(t, sink.ctxErr)
}

func TestPayloadFromJob(t *testing.T) {
	msg := "Webhook returned status 500"
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job := &model.Job{
		ID:               "job-1",
		DocID:            "doc-1",
		WebhookURL:       "https://hooks.example.com/path",
		CurrentStep:      model.StepPtr(model.StepDeliver),
		ErrorMessage:     &msg,
		DeliveryAttempts: 5,
		UpdatedAt:        updated,
	}

	p := PayloadFromJob(job, "app_delivery")
	assert.Equal(t, notify.JobFailurePayload{
		JobID:            "job-1",
		DocID:            "doc-1",
		Step:             "deliver",
		Error:            msg,
		ErrorClass:       "app_delivery",
		Severity:         notify.SeverityCritical,
		DeliveryAttempts: 5,
		WebhookHost:      "hooks.example.com",
		OccurredAt:       updated,
	}, p)

	job.CurrentStep = model.StepPtr(model.StepValidate)
	assert.Equal(t, notify.SeverityWarning, PayloadFromJob(job, "").Severity)
}
