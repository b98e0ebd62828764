package data

import (
	"fmt"

	"github.com/target/mmk-jobpipe/internal/domain/model"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
)

// ErrJobNotFound is returned when a job id or doc_id does not exist.
var ErrJobNotFound = apperrors.NotFound("job not found")

// TransitionConflict reports a conditional status update that matched an existing job
// whose current status cannot move to target.
func TransitionConflict(id string, current, target model.JobStatus) error {
	return apperrors.Conflictf("job %s is %s and cannot move to %s", id, current, target)
}

// AllowedFrom lists the statuses from which target is reachable.
func AllowedFrom(target model.JobStatus) []string {
	var out []string
	for _, s := range []model.JobStatus{
		model.JobStatusPending,
		model.JobStatusRunning,
		model.JobStatusRetrying,
		model.JobStatusSucceeded,
		model.JobStatusFailed,
	} {
		if s.CanTransitionTo(target) {
			out = append(out, string(s))
		}
	}
	return out
}

func wrapStorage(err error, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, apperrors.MapDBError(err))
}
