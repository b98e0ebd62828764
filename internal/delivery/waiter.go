package delivery

import (
	"context"
	"math"
	"time"
)

// Waiter pauses between retries. Implementations must return early with the
// context error when ctx is done.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// WaiterFunc adapts a function to Waiter.
type WaiterFunc func(ctx context.Context, d time.Duration) error

// Wait implements Waiter.
func (f WaiterFunc) Wait(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerWaiter waits on a real timer.
type TimerWaiter struct{}

// Wait implements Waiter.
func (TimerWaiter) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns base^retry seconds, capped at maxWait. retry is 1-based.
func Backoff(base float64, retry int, maxWait time.Duration) time.Duration {
	if retry < 1 {
		return 0
	}
	secs := math.Pow(base, float64(retry))
	if math.IsInf(secs, 0) || math.IsNaN(secs) || secs*float64(time.Second) >= float64(maxWait) {
		return maxWait
	}
	return time.Duration(secs * float64(time.Second))
}
