package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/mmk-jobpipe/internal/domain/model"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo is the PostgreSQL JobStore.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "job_repo")
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger,
	}
}

// Ping verifies the database is reachable.
func (r *JobRepo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

const jobColumns = `
  id,
  doc_id,
  payload,
  webhook_url,
  status,
  current_step,
  result,
  error_message,
  delivery_id,
  delivered_at,
  delivery_attempts,
  dispatch_task_id,
  created_at,
  updated_at,
  completed_at
`

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	payload, result                                     []byte
	currentStep, errorMessage, deliveryID, dispatchTask sql.NullString
	deliveredAt, completedAt                            sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.DocID,
		&d.payload,
		&job.WebhookURL,
		&job.Status,
		&d.currentStep,
		&d.result,
		&d.errorMessage,
		&d.deliveryID,
		&d.deliveredAt,
		&job.DeliveryAttempts,
		&d.dispatchTask,
		&job.CreatedAt,
		&job.UpdatedAt,
		&d.completedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.Payload = cloneJSON(d.payload)
	job.Result = cloneJSON(d.result)
	if d.currentStep.Valid {
		job.CurrentStep = model.StepPtr(model.JobStep(d.currentStep.String))
	}
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	job.DeliveryID = cloneNullableString(d.deliveryID)
	job.DispatchTaskID = cloneNullableString(d.dispatchTask)
	job.DeliveredAt = cloneNullableTime(d.deliveredAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	return job, rows.Err()
}

func cloneJSON(raw []byte) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// nullableJSON returns nil for an absent document so pgx writes SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}

func nullableStep(step *model.JobStep) *string {
	if step == nil {
		return nil
	}
	s := string(*step)
	return &s
}

func terminalStatuses() []string {
	out := make([]string, 0, 2)
	for _, s := range model.TerminalStatuses() {
		out = append(out, string(s))
	}
	return out
}
