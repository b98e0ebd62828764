// Package notify defines the failure notification contract shared by all sinks.
package notify

import (
	"context"
	"time"
)

// Severity levels recognised by sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// JobFailurePayload is what sinks receive when a job ends FAILED.
type JobFailurePayload struct {
	JobID            string
	DocID            string
	Step             string
	Error            string
	ErrorClass       string
	Severity         string
	DeliveryAttempts int
	WebhookHost      string
	OccurredAt       time.Time
	Metadata         map[string]string
}

// Sink delivers failure notifications somewhere a human will see them.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements Sink.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
