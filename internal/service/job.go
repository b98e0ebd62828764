// Package service holds the application services behind the HTTP gateway and the redriver.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/domain/model"
)

// Submission messages returned to callers.
const (
	MsgJobQueued       = "Job created and queued for processing"
	msgJobExistsPrefix = "Job already exists with status: "
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store  core.JobStore  // Required: job store
	Queue  core.TaskQueue // Required: task queue
	Logger *slog.Logger   // Optional: structured logger
}

// JobService accepts submissions and answers status queries.
//
// Submit is idempotent on doc_id: resubmitting returns the existing job and does not
// enqueue it again, unless an earlier enqueue never completed.
type JobService struct {
	store  core.JobStore
	queue  core.TaskQueue
	logger *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("TaskQueue is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		store:  opts.Store,
		queue:  opts.Queue,
		logger: logger.With("component", "job_service"),
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit validates req, records the job and dispatches it.
func (s *JobService) Submit(ctx context.Context, req model.CreateJobRequest) (*model.CreateJobResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job, isNew, err := s.store.CreateJob(ctx, req.DocID, req.Payload, req.WebhookURL)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if isNew || needsDispatch(job) {
		if !isNew {
			s.logger.InfoContext(ctx, "re-enqueueing undispatched job", "job_id", job.ID, "doc_id", job.DocID)
		}
		if err := s.dispatch(ctx, job.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to enqueue job", "job_id", job.ID, "doc_id", job.DocID, "error", err)
			return nil, err
		}
	}

	resp := &model.CreateJobResponse{
		JobID:  job.ID,
		DocID:  job.DocID,
		Status: job.Status,
		IsNew:  isNew,
	}
	if isNew {
		resp.Message = MsgJobQueued
		s.logger.InfoContext(ctx, "job created", "job_id", job.ID, "doc_id", job.DocID)
	} else {
		resp.Message = msgJobExistsPrefix + string(job.Status)
		s.logger.InfoContext(ctx, "duplicate submission", "job_id", job.ID, "doc_id", job.DocID, "status", job.Status)
	}
	return resp, nil
}

// Status returns the job with the given id.
func (s *JobService) Status(ctx context.Context, id string) (*model.Job, error) {
	return s.store.GetJob(ctx, id)
}

// Dispatch enqueues id and records the task id on the job.
func (s *JobService) Dispatch(ctx context.Context, id string) error {
	return s.dispatch(ctx, id)
}

func (s *JobService) dispatch(ctx context.Context, id string) error {
	taskID, err := s.queue.Enqueue(ctx, id)
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", id, err)
	}
	if err := s.store.RecordDispatch(ctx, id, taskID); err != nil {
		// The task is queued either way; a lost record only risks a duplicate enqueue.
		s.logger.WarnContext(ctx, "failed to record dispatch", "job_id", id, "task_id", taskID, "error", err)
	}
	return nil
}

func needsDispatch(job *model.Job) bool {
	return job.Status == model.JobStatusPending && (job.DispatchTaskID == nil || *job.DispatchTaskID == "")
}
