package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/data/pgxutil"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
)

var _ core.JobStore = (*JobRepo)(nil)

const updateStatusQuery = `
  UPDATE jobs SET
    status            = $2,
    current_step      = COALESCE($3, current_step),
    result            = COALESCE($4::jsonb, result),
    error_message     = COALESCE($5, error_message),
    delivery_id       = COALESCE($6, delivery_id),
    delivered_at      = COALESCE(delivered_at, $7),
    delivery_attempts = delivery_attempts + $8,
    completed_at      = CASE WHEN $2 = 'SUCCEEDED' THEN $9 ELSE completed_at END,
    updated_at        = $9
  WHERE id = $1 AND status = ANY($10)`

// CreateJob inserts a PENDING job keyed by docID, folding unique violations into isNew=false.
func (r *JobRepo) CreateJob(
	ctx context.Context,
	docID string,
	payload json.RawMessage,
	webhookURL string,
) (*model.Job, bool, error) {
	existing, err := r.GetJobByDocID(ctx, docID)
	if err == nil {
		return existing, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}

	now := r.timeProvider.Now().UTC()
	var job *model.Job
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, qErr := tx.Query(ctx, `
				INSERT INTO jobs (id, doc_id, payload, webhook_url, status, delivery_attempts, created_at, updated_at)
				VALUES ($1, $2, $3::jsonb, $4, 'PENDING', 0, $5, $5)
				RETURNING `+jobColumns,
				uuid.NewString(), docID, string(payload), webhookURL, now)
			if qErr != nil {
				return fmt.Errorf("insert job: %w", qErr)
			}
			defer rows.Close()
			var collectErr error
			job, collectErr = collectJobFromRows(rows)
			return collectErr
		},
	})

	switch {
	case txErr == nil:
		r.logger.DebugContext(ctx, "job created", "job_id", job.ID, "doc_id", docID)
		return job, true, nil
	case apperrors.IsUniqueViolation(txErr):
		existing, getErr := r.GetJobByDocID(ctx, docID)
		if getErr != nil {
			return nil, false, getErr
		}
		r.logger.InfoContext(ctx, "concurrent create resolved to existing job",
			"job_id", existing.ID, "doc_id", docID)
		return existing, false, nil
	default:
		return nil, false, wrapStorage(txErr, "create job")
	}
}

// GetJob retrieves a job by its ID.
func (r *JobRepo) GetJob(ctx context.Context, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}
	return r.getOne(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
}

// GetJobByDocID retrieves a job by its caller-supplied idempotency key.
func (r *JobRepo) GetJobByDocID(ctx context.Context, docID string) (*model.Job, error) {
	return r.getOne(ctx, `SELECT `+jobColumns+` FROM jobs WHERE doc_id = $1`, docID)
}

func (r *JobRepo) getOne(ctx context.Context, query string, arg any) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, wrapStorage(err, "get job")
	}
	return job, nil
}

// UpdateStatus applies u in a single conditional UPDATE guarded by the transition table.
func (r *JobRepo) UpdateStatus(ctx context.Context, id string, u model.StatusUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	increment := 0
	if u.IncrementAttempts {
		increment = 1
	}
	now := r.timeProvider.Now().UTC()

	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		tag, execErr := pgxConn.Exec(ctx, updateStatusQuery,
			id,
			string(u.Status),
			nullableStep(u.Step),
			nullableJSON(u.Result),
			u.ErrorMessage,
			u.DeliveryID,
			u.DeliveredAt,
			increment,
			now,
			AllowedFrom(u.Status),
		)
		affected = tag.RowsAffected()
		return execErr
	})
	if err != nil {
		return wrapStorage(err, "update job status")
	}
	if affected == 1 {
		return nil
	}

	current, getErr := r.GetJob(ctx, id)
	if getErr != nil {
		return getErr
	}
	return TransitionConflict(id, current.Status, u.Status)
}

// RecordDispatch stores the task id of the latest dispatch.
func (r *JobRepo) RecordDispatch(ctx context.Context, id, taskID string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE jobs SET dispatch_task_id = $2, updated_at = $3 WHERE id = $1`,
		id, taskID, r.timeProvider.Now().UTC())
	if err != nil {
		return wrapStorage(err, "record dispatch")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStorage(err, "record dispatch")
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// AssignDeliveryID records candidate unless a delivery id already exists and returns the stored value.
func (r *JobRepo) AssignDeliveryID(ctx context.Context, id, candidate string) (string, error) {
	var deliveryID string
	err := r.DB.QueryRowContext(ctx, `
		UPDATE jobs SET delivery_id = $2, updated_at = $3
		WHERE id = $1 AND delivery_id IS NULL
		RETURNING delivery_id`,
		id, candidate, r.timeProvider.Now().UTC()).Scan(&deliveryID)
	if err == nil {
		return deliveryID, nil
	}
	if !apperrors.IsNotFound(apperrors.MapDBError(err)) {
		return "", wrapStorage(err, "assign delivery id")
	}

	job, getErr := r.GetJob(ctx, id)
	if getErr != nil {
		return "", getErr
	}
	if job.DeliveryID == nil {
		return "", apperrors.Conflictf("job %s delivery id changed concurrently", id)
	}
	return *job.DeliveryID, nil
}

// MarkDelivered sets delivered_at once; later callers get claimed=false.
func (r *JobRepo) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs SET delivered_at = $2, updated_at = $3
		WHERE id = $1 AND delivered_at IS NULL`,
		id, at.UTC(), r.timeProvider.Now().UTC())
	if err != nil {
		return false, wrapStorage(err, "mark delivered")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapStorage(err, "mark delivered")
	}
	if n == 1 {
		return true, nil
	}
	if _, getErr := r.GetJob(ctx, id); getErr != nil {
		return false, getErr
	}
	return false, nil
}

// ListStale returns non-terminal jobs whose updated_at is older than before.
func (r *JobRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE status <> ALL($1) AND updated_at < $2
			ORDER BY updated_at ASC
			LIMIT $3`,
			terminalStatuses(), before.UTC(), limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, scanErr := scanJobFromRow(rows)
			if scanErr != nil {
				return scanErr
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, wrapStorage(err, "list stale jobs")
	}
	return jobs, nil
}
