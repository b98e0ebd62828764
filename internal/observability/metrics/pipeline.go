// Package metrics defines the metric names and tag sets emitted by the job pipeline.
package metrics

import (
	"maps"
	"strconv"
	"time"

	obserrors "github.com/target/mmk-jobpipe/internal/observability/errors"
	"github.com/target/mmk-jobpipe/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Metric names.
const (
	NamePipelineRun      = "pipeline.run"
	NamePipelineDuration = "pipeline.duration"
	NameStep             = "pipeline.step"
	NameStepDuration     = "pipeline.step.duration"
	NameDeliveryAttempt  = "delivery.attempt"
	NameDeliveryDuration = "delivery.duration"
	NameQueueEvent       = "queue.event"
	NameRedriven         = "redriver.requeued"
)

// RunMetric describes one orchestrator invocation.
type RunMetric struct {
	Outcome  string
	Duration time.Duration
	Err      error
}

// EmitRun records the outcome of a pipeline run.
func EmitRun(sink statsd.Sink, in RunMetric) {
	if sink == nil {
		return
	}
	tags := withErrorClass(map[string]string{"outcome": in.Outcome}, in.Err)
	sink.Count(NamePipelineRun, 1, tags)
	if in.Duration > 0 {
		sink.Timing(NamePipelineDuration, in.Duration, CloneTags(tags))
	}
}

// StepMetric describes one pipeline step execution.
type StepMetric struct {
	Step     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitStep records a single step.
func EmitStep(sink statsd.Sink, in StepMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"step": in.Step, "result": in.Result}
	if in.Result == ResultError {
		tags = withErrorClass(tags, in.Err)
	}
	sink.Count(NameStep, 1, tags)
	if in.Duration > 0 {
		sink.Timing(NameStepDuration, in.Duration, CloneTags(tags))
	}
}

// DeliveryMetric describes one webhook attempt.
type DeliveryMetric struct {
	Attempt    int
	StatusCode int
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitDeliveryAttempt records a webhook POST.
func EmitDeliveryAttempt(sink statsd.Sink, in DeliveryMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"result":  in.Result,
		"attempt": strconv.Itoa(in.Attempt),
	}
	if in.StatusCode > 0 {
		tags["status_code"] = strconv.Itoa(in.StatusCode)
	}
	if in.Result == ResultError {
		tags = withErrorClass(tags, in.Err)
	}
	sink.Count(NameDeliveryAttempt, 1, tags)
	if in.Duration > 0 {
		sink.Timing(NameDeliveryDuration, in.Duration, CloneTags(tags))
	}
}

// QueueMetric describes a task queue event such as enqueue, redeliver or dead_letter.
type QueueMetric struct {
	Backend string
	Event   string
}

// EmitQueueEvent counts a queue event.
func EmitQueueEvent(sink statsd.Sink, in QueueMetric) {
	if sink == nil {
		return
	}
	sink.Count(NameQueueEvent, 1, map[string]string{"backend": in.Backend, "event": in.Event})
}

// EmitRedriven counts jobs re-enqueued by the redriver.
func EmitRedriven(sink statsd.Sink, n int) {
	if sink == nil || n <= 0 {
		return
	}
	sink.Count(NameRedriven, int64(n), nil)
}

func withErrorClass(tags map[string]string, err error) map[string]string {
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
	return tags
}

// CloneTags returns a shallow copy of src, or nil when it is empty.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
