// Package queue holds the TaskQueue backends that dispatch job ids to pipeline workers.
//
// Both backends deliver at least once. A task whose handler returns an error is handed
// out again after a delay until it reaches the configured delivery limit, after which
// it is parked on a dead list for operators to inspect and requeue.
package queue

import (
	"context"
	"fmt"
)

// Queue events reported through metrics.EmitQueueEvent.
const (
	EventEnqueued     = "enqueued"
	EventAcked        = "acked"
	EventRedelivered  = "redelivered"
	EventReclaimed    = "reclaimed"
	EventDeadLettered = "dead_lettered"
	EventRequeued     = "requeued"
)

// SafeHandle runs fn and converts a panic into an error so one bad task cannot kill a worker.
func SafeHandle(ctx context.Context, fn func(context.Context, string) error, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panic: %v", r)
		}
	}()
	return fn(ctx, jobID)
}
