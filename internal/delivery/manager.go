// Package delivery posts job results to caller webhooks with retries and
// idempotency guarantees backed by the job store.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
	"github.com/target/mmk-jobpipe/internal/observability/statsd"
)

// TracerName is the instrumentation scope for delivery spans.
const TracerName = "jobpipe/delivery"

// Store is the subset of the job store the manager needs.
type Store interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	UpdateStatus(ctx context.Context, id string, u model.StatusUpdate) error
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
}

// Options configures a Manager.
type Options struct {
	Store      Store
	HTTPClient *http.Client
	Config     config.WebhookConfig
	Waiter     Waiter
	// Limiter throttles outbound requests. When nil one is built from Config.RateLimit.
	Limiter *rate.Limiter
	Metrics statsd.Sink
	Tracer  trace.Tracer
	Logger  *slog.Logger
	Now     func() time.Time
}

// Manager delivers results with retry, backoff and duplicate suppression.
type Manager struct {
	store   Store
	client  *http.Client
	cfg     config.WebhookConfig
	waiter  Waiter
	limiter *rate.Limiter
	metrics statsd.Sink
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager validates opts and returns a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("delivery: store is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	m := &Manager{
		store:   opts.Store,
		client:  opts.HTTPClient,
		cfg:     cfg,
		waiter:  opts.Waiter,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if m.client == nil {
		m.client = &http.Client{}
	}
	if m.waiter == nil {
		m.waiter = TimerWaiter{}
	}
	if m.limiter == nil && cfg.RateLimit > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(TracerName)
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "delivery_manager")
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	return m, nil
}

// MustNewManager is NewManager that panics on error.
func MustNewManager(opts Options) *Manager {
	m, err := NewManager(opts)
	if err != nil {
		panic(err)
	}
	return m
}

// DeliverWithRetry posts req.Result to the job webhook up to MaxRetries+1 times.
// The store is consulted before every attempt so a result already delivered by
// a concurrent invocation is never sent again. Errors are only returned for
// storage failures and cancellation; webhook failures are reported in Result.
func (m *Manager) DeliverWithRetry(ctx context.Context, req Request) (Result, error) {
	if req.Job == nil {
		return Result{}, apperrors.Internal("delivery: job is required")
	}
	jobID := req.Job.ID
	maxAttempts := m.cfg.MaxRetries + 1

	var lastErr string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if res, stop, err := m.prepareRetry(ctx, jobID, attempt-1, lastErr); stop {
				return res, err
			}
		}

		current, err := m.store.GetJob(ctx, jobID)
		if err != nil {
			return Result{}, fmt.Errorf("delivery: reload job: %w", err)
		}
		if current.DeliveredAt != nil {
			m.logger.InfoContext(ctx, "job already delivered, skipping webhook",
				"job_id", jobID, "delivery_id", req.DeliveryID)
			return Result{Kind: KindDelivered, DeliveredAt: *current.DeliveredAt, Attempts: attempt - 1}, nil
		}
		if current.Status.IsTerminal() {
			return Result{Kind: KindSuperseded, Attempts: attempt - 1}, nil
		}

		out := m.attempt(ctx, req, attempt)
		if out.err == nil {
			return m.recordSuccess(ctx, jobID, attempt)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		lastErr = out.err.Error()
	}

	m.logger.WarnContext(ctx, "webhook delivery exhausted",
		"job_id", jobID, "attempts", maxAttempts, "error", lastErr)
	return Result{Kind: KindFailed, Attempts: maxAttempts, LastError: lastErr}, nil
}

// prepareRetry persists RETRYING and waits out the backoff. stop reports
// whether the caller must return res and err immediately.
func (m *Manager) prepareRetry(ctx context.Context, jobID string, retry int, lastErr string) (Result, bool, error) {
	err := m.store.UpdateStatus(ctx, jobID, model.StatusUpdate{
		Status:            model.JobStatusRetrying,
		Step:              model.StepPtr(model.StepDeliver),
		IncrementAttempts: true,
	})
	switch {
	case apperrors.IsConflict(err):
		m.logger.InfoContext(ctx, "job moved by another invocation, abandoning retries",
			"job_id", jobID, "retry", retry)
		return Result{Kind: KindSuperseded, Attempts: retry}, true, nil
	case err != nil:
		return Result{}, true, fmt.Errorf("delivery: persist retry: %w", err)
	}

	wait := Backoff(m.cfg.RetryBackoffBase, retry, m.cfg.MaxBackoff)
	m.logger.InfoContext(ctx, "retrying webhook delivery",
		"job_id", jobID, "retry", retry, "backoff", wait.String(), "error", lastErr)
	if err := m.waiter.Wait(ctx, wait); err != nil {
		return Result{}, true, err
	}
	return Result{}, false, nil
}

func (m *Manager) recordSuccess(ctx context.Context, jobID string, attempt int) (Result, error) {
	at := m.now()
	claimed, err := m.store.MarkDelivered(ctx, jobID, at)
	if err != nil {
		return Result{}, fmt.Errorf("delivery: mark delivered: %w", err)
	}
	if !claimed {
		current, getErr := m.store.GetJob(ctx, jobID)
		if getErr != nil {
			return Result{}, fmt.Errorf("delivery: reload job: %w", getErr)
		}
		if current.DeliveredAt != nil {
			at = *current.DeliveredAt
		}
	}
	return Result{Kind: KindDelivered, DeliveredAt: at, Attempts: attempt}, nil
}
