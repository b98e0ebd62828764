// Package httpx provides the HTTP gateway for job submission and status queries.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/mmk-jobpipe/internal/domain/model"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
	"github.com/target/mmk-jobpipe/internal/service"
)

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Svc    *service.JobService
	Logger *slog.Logger
}

// CreateJob handles HTTP requests to submit a job.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		if !apperrors.IsValidation(err) {
			h.logger().ErrorContext(r.Context(), "job submission failed", "doc_id", req.DocID, "error", err)
		}
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, resp)
}

// GetStatus handles HTTP requests to retrieve the status of a specific job.
func (h *JobHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: string(apperrors.ErrCodeValidation),
			Field:   "id",
			Err:     errors.New("job id is required"),
		})
		return
	}

	job, err := h.Svc.Status(r.Context(), jobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			h.logger().InfoContext(r.Context(), "job not found", "job_id", jobID)
			WriteAppError(w, apperrors.NotFoundf("Job %s not found", jobID))
			return
		}
		h.logger().ErrorContext(r.Context(), "get job status failed", "job_id", jobID, "error", err)
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, model.NewJobStatusResponse(job))
}

func (h *JobHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
