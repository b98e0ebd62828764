// Package failurenotifier fans FAILED jobs out to notification sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/target/mmk-jobpipe/internal/domain/model"
	"github.com/target/mmk-jobpipe/internal/observability/notify"
)

const defaultTimeout = 10 * time.Second

// SinkRegistration pairs a sink with a name used in logs.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Timeout bounds a whole fan-out. Notifications outlive cancellation of the
	// caller's context so that shutdown does not swallow them.
	Timeout time.Duration
}

// Service dispatches failure events to every registered sink.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{logger: logger, sinks: sinks, timeout: timeout}
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// NotifyFailedJob builds a payload from a FAILED job and sends it.
func (s *Service) NotifyFailedJob(ctx context.Context, job *model.Job, errorClass string) {
	if !s.Enabled() || job == nil {
		return
	}
	s.NotifyJobFailure(ctx, PayloadFromJob(job, errorClass))
}

// PayloadFromJob maps a job onto the notification payload.
// Validation failures are the submitter's fault and are sent as warnings.
func PayloadFromJob(job *model.Job, errorClass string) notify.JobFailurePayload {
	p := notify.JobFailurePayload{
		JobID:            job.ID,
		DocID:            job.DocID,
		ErrorClass:       errorClass,
		Severity:         notify.SeverityCritical,
		DeliveryAttempts: job.DeliveryAttempts,
		OccurredAt:       job.UpdatedAt,
	}
	if job.CurrentStep != nil {
		p.Step = string(*job.CurrentStep)
		if *job.CurrentStep == model.StepValidate {
			p.Severity = notify.SeverityWarning
		}
	}
	if job.ErrorMessage != nil {
		p.Error = *job.ErrorMessage
	}
	if u, err := url.Parse(job.WebhookURL); err == nil {
		p.WebhookHost = u.Host
	}
	return p
}

// NotifyJobFailure fans the payload out to all sinks concurrently and waits for them.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if !s.Enabled() {
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"doc_id", payload.DocID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}
