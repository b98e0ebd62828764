// Package pipeline runs the validate, transform and deliver steps for one job.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/delivery"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
	obserrors "github.com/target/mmk-jobpipe/internal/observability/errors"
	"github.com/target/mmk-jobpipe/internal/observability/metrics"
	"github.com/target/mmk-jobpipe/internal/observability/statsd"
)

// TracerName is the instrumentation scope for pipeline spans.
const TracerName = "jobpipe/pipeline"

// errSkip stops a run because another invocation already moved the job.
var errSkip = errors.New("pipeline: job moved by another invocation")

// Deliverer posts a result to the job webhook.
type Deliverer interface {
	DeliverWithRetry(ctx context.Context, req delivery.Request) (delivery.Result, error)
}

// FailureNotifier is told about jobs that end FAILED.
type FailureNotifier interface {
	NotifyFailedJob(ctx context.Context, job *model.Job, errorClass string)
}

// Options configures an Orchestrator.
type Options struct {
	Store     core.JobStore
	Deliverer Deliverer
	Notifier  FailureNotifier
	Config    config.PipelineConfig
	// Waiter implements the transform delay. Defaults to a timer.
	Waiter        delivery.Waiter
	Metrics       statsd.Sink
	Tracer        trace.Tracer
	Logger        *slog.Logger
	NewDeliveryID func() string
}

// Orchestrator drives one job through its steps. Run is safe to call
// concurrently and repeatedly for the same job.
type Orchestrator struct {
	store      core.JobStore
	deliverer  Deliverer
	notifier   FailureNotifier
	cfg        config.PipelineConfig
	waiter     delivery.Waiter
	metrics    statsd.Sink
	tracer     trace.Tracer
	logger     *slog.Logger
	deliveryID func() string
}

// NewOrchestrator validates opts and returns an Orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if opts.Deliverer == nil {
		return nil, errors.New("pipeline: deliverer is required")
	}

	o := &Orchestrator{
		store:      opts.Store,
		deliverer:  opts.Deliverer,
		notifier:   opts.Notifier,
		cfg:        opts.Config,
		waiter:     opts.Waiter,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		logger:     opts.Logger,
		deliveryID: opts.NewDeliveryID,
	}
	o.cfg.Sanitize()
	if o.waiter == nil {
		o.waiter = delivery.TimerWaiter{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(TracerName)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "pipeline")
	}
	if o.deliveryID == nil {
		o.deliveryID = uuid.NewString
	}
	return o, nil
}

// MustNewOrchestrator is NewOrchestrator that panics on error.
func MustNewOrchestrator(opts Options) *Orchestrator {
	o, err := NewOrchestrator(opts)
	if err != nil {
		panic(err)
	}
	return o
}

// Run executes the pipeline for jobID. A nil error means the task is done,
// whatever the outcome; a non-nil error asks the queue to redeliver.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	start := time.Now()
	outcome, err := o.run(ctx, jobID)

	span.SetAttributes(attribute.String("pipeline.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if outcome == OutcomeFailed {
		span.SetStatus(codes.Error, "job failed")
	}
	metrics.EmitRun(o.metrics, metrics.RunMetric{Outcome: string(outcome), Duration: time.Since(start), Err: err})
	return outcome, err
}

func (o *Orchestrator) run(ctx context.Context, jobID string) (outcome Outcome, err error) {
	job, err := o.store.GetJob(ctx, jobID)
	if apperrors.IsNotFound(err) {
		o.logger.ErrorContext(ctx, "job not found", "job_id", jobID)
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("pipeline: load job: %w", err)
	}
	if job.Status.IsTerminal() {
		o.logger.InfoContext(ctx, "job already terminal, skipping", "job_id", jobID, "status", job.Status)
		return OutcomeSkipped, nil
	}

	log := o.logger.With("job_id", jobID, "doc_id", job.DocID)
	log.InfoContext(ctx, "pipeline started", "status", job.Status)

	step := model.StepValidate
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("Internal error: %v", r)
			log.ErrorContext(ctx, "pipeline panic recovered", "step", step, "panic", r)
			if _, failErr := o.fail(ctx, job, step, failed(FailureInternal, msg)); failErr != nil {
				log.ErrorContext(ctx, "failed to record panic", "error", failErr)
			}
			outcome = OutcomeFailed
			err = apperrors.Internal(fmt.Sprintf("pipeline panic in %s step: %v", step, r))
		}
	}()

	outcome, err = o.steps(ctx, job, &step)
	if errors.Is(err, errSkip) {
		log.InfoContext(ctx, "job moved by another invocation, stopping", "step", step)
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeError, err
	}
	log.InfoContext(ctx, "pipeline finished", "outcome", outcome)
	return outcome, nil
}

// steps runs validate, transform and deliver in order. *step tracks the
// current step so a recovered panic is attributed correctly.
func (o *Orchestrator) steps(ctx context.Context, job *model.Job, step *model.JobStep) (Outcome, error) {
	*step = model.StepValidate
	if err := o.enter(ctx, job.ID, model.StatusUpdate{Status: model.JobStatusRunning, Step: step}); err != nil {
		return OutcomeError, err
	}
	if out := o.traceStep(ctx, *step, func(context.Context) StepOutcome { return Validate(job.Payload) }); !out.OK() {
		return o.fail(ctx, job, *step, out)
	}

	if err := o.waiter.Wait(ctx, o.cfg.TransformDelay); err != nil {
		return OutcomeError, err
	}

	*step = model.StepTransform
	if err := o.enter(ctx, job.ID, model.StatusUpdate{Status: model.JobStatusRunning, Step: step}); err != nil {
		return OutcomeError, err
	}
	var result json.RawMessage
	if out := o.traceStep(ctx, *step, func(context.Context) StepOutcome {
		var res StepOutcome
		result, res = Transform(job.ID, job.Payload)
		return res
	}); !out.OK() {
		return o.fail(ctx, job, *step, out)
	}

	*step = model.StepDeliver
	if err := o.enter(ctx, job.ID, model.StatusUpdate{Status: model.JobStatusRunning, Step: step}); err != nil {
		return OutcomeError, err
	}
	return o.deliver(ctx, job, result)
}

func (o *Orchestrator) deliver(ctx context.Context, job *model.Job, result json.RawMessage) (Outcome, error) {
	deliveryID, err := o.resolveDeliveryID(ctx, job)
	if err != nil {
		return OutcomeError, err
	}

	var res delivery.Result
	var deliverErr error
	o.traceStep(ctx, model.StepDeliver, func(ctx context.Context) StepOutcome {
		res, deliverErr = o.deliverer.DeliverWithRetry(ctx, delivery.Request{
			Job:        job,
			Result:     result,
			DeliveryID: deliveryID,
		})
		if deliverErr != nil {
			return failed(FailureDelivery, deliverErr.Error())
		}
		if res.Kind == delivery.KindFailed {
			return failed(FailureDelivery, res.LastError)
		}
		return StepOutcome{}
	})
	if deliverErr != nil {
		if apperrors.IsConflict(deliverErr) {
			return OutcomeSkipped, errSkip
		}
		return OutcomeError, fmt.Errorf("pipeline: deliver: %w", deliverErr)
	}

	switch res.Kind {
	case delivery.KindDelivered:
		deliveredAt := res.DeliveredAt
		if err := o.enter(ctx, job.ID, model.StatusUpdate{
			Status:      model.JobStatusSucceeded,
			Result:      result,
			DeliveryID:  &deliveryID,
			DeliveredAt: &deliveredAt,
		}); err != nil {
			return OutcomeError, err
		}
		return OutcomeSucceeded, nil
	case delivery.KindFailed:
		return o.fail(ctx, job, model.StepDeliver, failed(FailureDelivery, res.LastError))
	default:
		return OutcomeSkipped, errSkip
	}
}

func (o *Orchestrator) resolveDeliveryID(ctx context.Context, job *model.Job) (string, error) {
	if job.DeliveryID != nil && *job.DeliveryID != "" {
		return *job.DeliveryID, nil
	}
	id, err := o.store.AssignDeliveryID(ctx, job.ID, o.deliveryID())
	if err != nil {
		return "", fmt.Errorf("pipeline: assign delivery id: %w", err)
	}
	return id, nil
}

// enter persists a status write, translating conflicts into errSkip.
func (o *Orchestrator) enter(ctx context.Context, jobID string, u model.StatusUpdate) error {
	err := o.store.UpdateStatus(ctx, jobID, u)
	switch {
	case err == nil:
		return nil
	case apperrors.IsConflict(err):
		return errSkip
	default:
		return fmt.Errorf("pipeline: write %s: %w", u.Status, err)
	}
}

// fail records the job FAILED with the step's message and notifies sinks.
func (o *Orchestrator) fail(ctx context.Context, job *model.Job, step model.JobStep, out StepOutcome) (Outcome, error) {
	msg := out.Message
	if err := o.enter(ctx, job.ID, model.StatusUpdate{
		Status:       model.JobStatusFailed,
		Step:         &step,
		ErrorMessage: &msg,
	}); err != nil {
		return OutcomeError, err
	}

	o.logger.WarnContext(ctx, "job failed",
		"job_id", job.ID, "step", step, "failure", out.Kind.String(), "error", msg)

	if o.notifier != nil {
		failedJob, err := o.store.GetJob(ctx, job.ID)
		if err != nil {
			o.logger.ErrorContext(ctx, "reload failed job for notification", "job_id", job.ID, "error", err)
		} else {
			o.notifier.NotifyFailedJob(ctx, failedJob, out.Kind.String())
		}
	}
	return OutcomeFailed, nil
}

func (o *Orchestrator) traceStep(ctx context.Context, step model.JobStep, fn func(context.Context) StepOutcome) StepOutcome {
	ctx, span := o.tracer.Start(ctx, "pipeline.step."+string(step))
	defer span.End()

	start := time.Now()
	out := fn(ctx)

	result := metrics.ResultSuccess
	var stepErr error
	if !out.OK() {
		result = metrics.ResultError
		stepErr = apperrors.Wrap(errors.New(out.Message), stepCode(out.Kind), out.Message)
		span.SetStatus(codes.Error, out.Message)
		span.SetAttributes(attribute.String("pipeline.failure", out.Kind.String()))
	}
	metrics.EmitStep(o.metrics, metrics.StepMetric{
		Step:     string(step),
		Result:   result,
		Duration: time.Since(start),
		Err:      stepErr,
	})
	if stepErr != nil {
		o.logger.DebugContext(ctx, "step failed", "step", step, "error_class", obserrors.Classify(stepErr))
	}
	return out
}

func stepCode(kind FailureKind) apperrors.ErrorCode {
	switch kind {
	case FailureValidation:
		return apperrors.ErrCodeValidation
	case FailureTransform:
		return apperrors.ErrCodeTransform
	case FailureDelivery:
		return apperrors.ErrCodeDelivery
	default:
		return apperrors.ErrCodeInternal
	}
}
