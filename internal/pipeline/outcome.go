package pipeline

// Outcome is how a Run ended.
type Outcome string

const (
	// OutcomeSucceeded means the result was delivered and the job is SUCCEEDED.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means this run moved the job to FAILED.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the job was already terminal or another invocation finished it.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeNotFound means the job id does not exist. The task is dropped.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeError means the run stopped on an error and should be retried by the queue.
	OutcomeError Outcome = "error"
)

// FailureKind tags why a step failed.
type FailureKind int

const (
	// FailureNone marks a successful step.
	FailureNone FailureKind = iota
	// FailureValidation is a malformed payload. It is never retried.
	FailureValidation
	// FailureTransform is an error deriving the result.
	FailureTransform
	// FailureDelivery is webhook delivery exhausted after retries.
	FailureDelivery
	// FailureInternal is an unexpected fault such as a recovered panic.
	FailureInternal
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureValidation:
		return "validation"
	case FailureTransform:
		return "transform"
	case FailureDelivery:
		return "delivery"
	case FailureInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// StepOutcome is the explicit result of a step.
type StepOutcome struct {
	Kind    FailureKind
	Message string
}

// OK reports whether the step succeeded.
func (o StepOutcome) OK() bool { return o.Kind == FailureNone }

func failed(kind FailureKind, msg string) StepOutcome {
	return StepOutcome{Kind: kind, Message: msg}
}
