package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/target/mmk-jobpipe/internal/domain/model"
	"github.com/target/mmk-jobpipe/internal/observability/metrics"
)

const maxDrainBytes = 64 << 10

// Attempt errors are stored verbatim as the job error_message, hence the capitalisation.
//
//nolint:staticcheck // ST1005
var errTimedOut = errors.New("Webhook request timed out")

//nolint:staticcheck // ST1005
func requestError(err error) error { return fmt.Errorf("Request error: %w", err) }

//nolint:staticcheck // ST1005
func statusError(code int) error { return fmt.Errorf("Webhook returned status %d", code) }

type attemptOutcome struct {
	statusCode int
	err        error
}

// successCodes are the statuses treated as an acknowledged delivery.
var successCodes = map[int]bool{
	http.StatusOK:        true,
	http.StatusCreated:   true,
	http.StatusAccepted:  true,
	http.StatusNoContent: true,
}

func (m *Manager) attempt(ctx context.Context, req Request, attempt int) attemptOutcome {
	ctx, span := m.tracer.Start(ctx, "delivery.attempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", req.Job.ID),
		attribute.String("delivery.id", req.DeliveryID),
		attribute.Int("delivery.attempt", attempt),
	)

	start := time.Now()
	out := m.post(ctx, req, attempt)

	result := metrics.ResultSuccess
	if out.err != nil {
		result = metrics.ResultError
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		m.logger.WarnContext(ctx, "webhook attempt failed",
			"job_id", req.Job.ID, "attempt", attempt, "status_code", out.statusCode, "error", out.err)
	} else {
		span.SetStatus(codes.Ok, "")
		m.logger.InfoContext(ctx, "webhook delivered",
			"job_id", req.Job.ID, "attempt", attempt, "status_code", out.statusCode, "delivery_id", req.DeliveryID)
	}
	if out.statusCode > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", out.statusCode))
	}
	metrics.EmitDeliveryAttempt(m.metrics, metrics.DeliveryMetric{
		Attempt:    attempt,
		StatusCode: out.statusCode,
		Result:     result,
		Duration:   time.Since(start),
		Err:        out.err,
	})
	return out
}

func (m *Manager) post(ctx context.Context, req Request, attempt int) attemptOutcome {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return attemptOutcome{err: requestError(err)}
		}
	}

	body, err := json.Marshal(model.WebhookPayload{
		JobID:       req.Job.ID,
		Status:      model.WebhookStatusCompleted,
		Result:      req.Result,
		DeliveredAt: m.now(),
	})
	if err != nil {
		return attemptOutcome{err: requestError(err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, req.Job.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return attemptOutcome{err: requestError(err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(model.HeaderIdempotencyKey, req.DeliveryID)
	httpReq.Header.Set(model.HeaderJobID, req.Job.ID)
	httpReq.Header.Set(model.HeaderDeliveryAttempt, strconv.Itoa(attempt))

	resp, err := m.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return attemptOutcome{err: errTimedOut}
		}
		return attemptOutcome{err: requestError(err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if !successCodes[resp.StatusCode] {
		return attemptOutcome{
			statusCode: resp.StatusCode,
			err:        statusError(resp.StatusCode),
		}
	}
	return attemptOutcome{statusCode: resp.StatusCode}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
