// Package model defines the core data types shared by the job pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/idna"

	apperrors "github.com/target/mmk-jobpipe/internal/errors"
)

// JobStatus represents the lifecycle state of a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

// JobStep names the pipeline step a job last entered.
type JobStep string

const (
	// JobStatusPending is the initial state set at creation.
	JobStatusPending JobStatus = "PENDING"
	// JobStatusRunning indicates a worker is executing the pipeline.
	JobStatusRunning JobStatus = "RUNNING"
	// JobStatusRetrying indicates webhook delivery failed and a retry is scheduled.
	JobStatusRetrying JobStatus = "RETRYING"
	// JobStatusSucceeded is terminal: the result was delivered.
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	// JobStatusFailed is terminal: a step failed or delivery was exhausted.
	JobStatusFailed JobStatus = "FAILED"

	// StepValidate checks the payload shape.
	StepValidate JobStep = "validate"
	// StepTransform derives the result object.
	StepTransform JobStep = "transform"
	// StepDeliver posts the result to the webhook.
	StepDeliver JobStep = "deliver"
)

// MaxDocIDLength bounds the caller-supplied idempotency key.
const MaxDocIDLength = 255

var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:  {JobStatusRunning},
	JobStatusRunning:  {JobStatusRunning, JobStatusRetrying, JobStatusSucceeded, JobStatusFailed},
	JobStatusRetrying: {JobStatusRetrying, JobStatusRunning, JobStatusSucceeded, JobStatusFailed},
}

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusRetrying, JobStatusSucceeded, JobStatusFailed:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler so statuses can be parsed from flags and query strings.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	return slices.Contains(transitions[s], next)
}

// TerminalStatuses lists the states a job never leaves.
func TerminalStatuses() []JobStatus {
	return []JobStatus{JobStatusSucceeded, JobStatusFailed}
}

// Valid returns true if the JobStep is a known pipeline step.
func (s JobStep) Valid() bool {
	return s == StepValidate || s == StepTransform || s == StepDeliver
}

// Job is one submitted unit of work and its delivery bookkeeping.
type Job struct {
	ID               string          `json:"id"                         db:"id"`
	DocID            string          `json:"doc_id"                     db:"doc_id"`
	Payload          json.RawMessage `json:"payload"                    db:"payload"`
	WebhookURL       string          `json:"webhook_url"                db:"webhook_url"`
	Status           JobStatus       `json:"status"                     db:"status"`
	CurrentStep      *JobStep        `json:"current_step,omitempty"     db:"current_step"`
	Result           json.RawMessage `json:"result,omitempty"           db:"result"`
	ErrorMessage     *string         `json:"error_message,omitempty"    db:"error_message"`
	DeliveryID       *string         `json:"delivery_id,omitempty"      db:"delivery_id"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"     db:"delivered_at"`
	DeliveryAttempts int             `json:"delivery_attempts"          db:"delivery_attempts"`
	DispatchTaskID   *string         `json:"dispatch_task_id,omitempty" db:"dispatch_task_id"`
	CreatedAt        time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"                 db:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Payload = slices.Clone(j.Payload)
	out.Result = slices.Clone(j.Result)
	out.CurrentStep = clonePtr(j.CurrentStep)
	out.ErrorMessage = clonePtr(j.ErrorMessage)
	out.DeliveryID = clonePtr(j.DeliveryID)
	out.DeliveredAt = clonePtr(j.DeliveredAt)
	out.DispatchTaskID = clonePtr(j.DispatchTaskID)
	out.CompletedAt = clonePtr(j.CompletedAt)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StatusUpdate is a partial update applied atomically by JobStore.UpdateStatus.
// Nil fields are left untouched.
type StatusUpdate struct {
	Status       JobStatus
	Step         *JobStep
	Result       json.RawMessage
	ErrorMessage *string
	DeliveryID   *string
	// DeliveredAt is only written when the job has no delivered_at yet.
	DeliveredAt *time.Time
	// IncrementAttempts adds one to delivery_attempts in the same write.
	IncrementAttempts bool
}

// Validate rejects updates that could never be legal.
func (u StatusUpdate) Validate() error {
	if !u.Status.Valid() {
		return apperrors.ValidationField("status", fmt.Sprintf("invalid status %q", u.Status))
	}
	if u.Status == JobStatusPending {
		return apperrors.ValidationField("status", "jobs never return to PENDING")
	}
	if u.Step != nil && !u.Step.Valid() {
		return apperrors.ValidationField("current_step", fmt.Sprintf("invalid step %q", *u.Step))
	}
	return nil
}

// Apply mutates j in place the way a store applies u, stamping now as updated_at.
// It is used by stores without server-side update expressions.
func (u StatusUpdate) Apply(j *Job, now time.Time) {
	j.Status = u.Status
	if u.Step != nil {
		j.CurrentStep = clonePtr(u.Step)
	}
	if u.Result != nil {
		j.Result = slices.Clone(u.Result)
	}
	if u.ErrorMessage != nil {
		j.ErrorMessage = clonePtr(u.ErrorMessage)
	}
	if u.DeliveryID != nil {
		j.DeliveryID = clonePtr(u.DeliveryID)
	}
	if u.DeliveredAt != nil && j.DeliveredAt == nil {
		j.DeliveredAt = clonePtr(u.DeliveredAt)
	}
	if u.IncrementAttempts {
		j.DeliveryAttempts++
	}
	if u.Status == JobStatusSucceeded {
		completed := now
		j.CompletedAt = &completed
	}
	j.UpdatedAt = now
}

// StepPtr is a convenience for building StatusUpdate values.
func StepPtr(s JobStep) *JobStep { return &s }

// CreateJobRequest is the submission accepted by the gateway.
type CreateJobRequest struct {
	DocID      string          `json:"doc_id"`
	Payload    json.RawMessage `json:"payload"`
	WebhookURL string          `json:"webhook_url"`
}

// Validate checks the submission envelope. Payload shape is checked later by the
// pipeline so that malformed payloads surface as FAILED jobs rather than rejected requests.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.DocID) == "" {
		return apperrors.ValidationField("doc_id", "doc_id is required")
	}
	if len(r.DocID) > MaxDocIDLength {
		return apperrors.ValidationField("doc_id", fmt.Sprintf("doc_id must be at most %d characters", MaxDocIDLength))
	}
	if len(r.Payload) == 0 || string(r.Payload) == "null" {
		return apperrors.ValidationField("payload", "payload is required")
	}
	if !json.Valid(r.Payload) {
		return apperrors.ValidationField("payload", "payload must be valid JSON")
	}
	return ValidateWebhookURL(r.WebhookURL)
}

// ValidateWebhookURL requires an absolute http(s) URL with a resolvable-looking host.
func ValidateWebhookURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return apperrors.ValidationField("webhook_url", "webhook_url must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperrors.ValidationField("webhook_url", "webhook_url must use http or https")
	}
	host := u.Hostname()
	if host == "" {
		return apperrors.ValidationField("webhook_url", "webhook_url must include a host")
	}
	if _, err := idna.Lookup.ToASCII(host); err != nil {
		return apperrors.ValidationField("webhook_url", "webhook_url host is invalid")
	}
	return nil
}

// CreateJobResponse is returned from a submission.
type CreateJobResponse struct {
	JobID   string    `json:"job_id"`
	DocID   string    `json:"doc_id"`
	Status  JobStatus `json:"status"`
	IsNew   bool      `json:"is_new"`
	Message string    `json:"message"`
}

// JobStatusResponse is the externally visible view of a job.
type JobStatusResponse struct {
	JobID            string          `json:"job_id"`
	DocID            string          `json:"doc_id"`
	Status           JobStatus       `json:"status"`
	Result           json.RawMessage `json:"result,omitempty"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
	CurrentStep      *JobStep        `json:"current_step,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	DeliveryAttempts int             `json:"delivery_attempts"`
}

// NewJobStatusResponse projects a Job onto its status view.
func NewJobStatusResponse(j *Job) JobStatusResponse {
	return JobStatusResponse{
		JobID:            j.ID,
		DocID:            j.DocID,
		Status:           j.Status,
		Result:           j.Result,
		ErrorMessage:     j.ErrorMessage,
		CurrentStep:      j.CurrentStep,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		CompletedAt:      j.CompletedAt,
		DeliveryAttempts: j.DeliveryAttempts,
	}
}
