package metrics

import (
	"maps"
	"sync"
	"time"

	"github.com/target/mmk-jobpipe/internal/observability/statsd"
)

// Sample is one recorded metric call.
type Sample struct {
	Kind  string
	Name  string
	Value float64
	Tags  map[string]string
}

// Recorder is an in-memory statsd.Sink for tests.
type Recorder struct {
	mu      sync.Mutex
	samples []Sample
}

var _ statsd.Sink = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Count implements statsd.Sink.
func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.add(Sample{Kind: "count", Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

// Gauge implements statsd.Sink.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.add(Sample{Kind: "gauge", Name: name, Value: value, Tags: maps.Clone(tags)})
}

// Timing implements statsd.Sink.
func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(Sample{Kind: "timing", Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

func (r *Recorder) add(s Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

// Samples returns a copy of everything recorded so far.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Counts sums counter values named name whose tags include match.
func (r *Recorder) Counts(name string, match map[string]string) int64 {
	var total int64
	for _, s := range r.Samples() {
		if s.Kind != "count" || s.Name != name {
			continue
		}
		if hasTags(s.Tags, match) {
			total += int64(s.Value)
		}
	}
	return total
}

func hasTags(tags, match map[string]string) bool {
	for k, v := range match {
		if tags[k] != v {
			return false
		}
	}
	return true
}
