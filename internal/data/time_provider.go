package data

import "time"

// TimeProvider provides the current time; tests substitute a controllable clock.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider implements TimeProvider using real system time.
type RealTimeProvider struct{}

// Now returns the current system time in UTC.
func (r *RealTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// FixedTimeProvider implements TimeProvider with a fixed time for testing.
type FixedTimeProvider struct {
	fixedTime time.Time
}

// NewFixedTimeProvider creates a new FixedTimeProvider with the given time.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{fixedTime: t}
}

// Now returns the fixed time.
func (f *FixedTimeProvider) Now() time.Time {
	return f.fixedTime
}

// SetTime updates the fixed time (useful for testing time progression).
func (f *FixedTimeProvider) SetTime(t time.Time) {
	f.fixedTime = t
}

// AddTime adds a duration to the current fixed time.
func (f *FixedTimeProvider) AddTime(d time.Duration) {
	f.fixedTime = f.fixedTime.Add(d)
}
