package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/target/mmk-jobpipe/internal/domain/model"
)

// This file contains the port definitions between the pipeline and its collaborators.
// Services depend on these interfaces, not on concrete stores or brokers.

// JobStore is the durable record of job state and the sole authority on job identity,
// status and delivery bookkeeping. Every mutation is a single atomic write keyed by id
// or by the unique doc_id.
type JobStore interface {
	// CreateJob inserts a PENDING job for docID. When a job with docID already exists,
	// including when a concurrent insert wins the race, the existing job is returned with isNew=false.
	CreateJob(ctx context.Context, docID string, payload json.RawMessage, webhookURL string) (job *model.Job, isNew bool, err error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	GetJobByDocID(ctx context.Context, docID string) (*model.Job, error)
	// UpdateStatus applies u in one write. It fails with a conflict error when the job's
	// current status cannot transition to u.Status (including any terminal job).
	UpdateStatus(ctx context.Context, id string, u model.StatusUpdate) error
	RecordDispatch(ctx context.Context, id, taskID string) error
	// AssignDeliveryID stores candidate as delivery_id unless one is already recorded,
	// and returns whichever value the job ends up with.
	AssignDeliveryID(ctx context.Context, id, candidate string) (string, error)
	// MarkDelivered sets delivered_at to at if it is unset. Exactly one caller observes claimed=true.
	MarkDelivered(ctx context.Context, id string, at time.Time) (claimed bool, err error)
	// ListStale returns non-terminal jobs last updated before the cutoff, oldest first.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*model.Job, error)
}

// TaskHandler processes one dispatched job id. Returning an error asks the queue to redeliver.
type TaskHandler func(ctx context.Context, jobID string) error

// TaskQueue accepts job ids for at-least-once dispatch.
type TaskQueue interface {
	Enqueue(ctx context.Context, jobID string) (taskID string, err error)
}

// TaskConsumer invokes a handler at least once per enqueued job, possibly more than once
// and possibly concurrently. Consume blocks until ctx is done.
type TaskConsumer interface {
	Consume(ctx context.Context, handler TaskHandler) error
}

// DeadLetter is a task that exhausted its deliveries.
type DeadLetter struct {
	TaskID     string    `json:"task_id"`
	JobID      string    `json:"job_id"`
	Deliveries int       `json:"deliveries"`
	LastError  string    `json:"last_error,omitempty"`
	FailedAt   time.Time `json:"failed_at"`
}

// DeadLetterAdmin exposes dead-lettered tasks for operators.
type DeadLetterAdmin interface {
	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
	RequeueDead(ctx context.Context, taskID string) error
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
