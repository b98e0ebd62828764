// Package memory provides an in-process JobStore for tests and single-node development.
package memory

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/data"
	"github.com/target/mmk-jobpipe/internal/domain/model"
)

var _ core.JobStore = (*Store)(nil)

// Store keeps jobs in maps guarded by a single RWMutex. Every method returns clones.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*model.Job
	byDocID map[string]string
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTimeProvider overrides the clock used to stamp timestamps.
func WithTimeProvider(tp data.TimeProvider) Option {
	return func(s *Store) {
		if tp != nil {
			s.now = tp.Now
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		jobs:    make(map[string]*model.Job),
		byDocID: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// CreateJob implements core.JobStore.
func (s *Store) CreateJob(
	_ context.Context,
	docID string,
	payload json.RawMessage,
	webhookURL string,
) (*model.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byDocID[docID]; ok {
		return s.jobs[id].Clone(), false, nil
	}

	now := s.now()
	job := &model.Job{
		ID:         uuid.NewString(),
		DocID:      docID,
		Payload:    slices.Clone(payload),
		WebhookURL: webhookURL,
		Status:     model.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobs[job.ID] = job
	s.byDocID[docID] = job.ID
	return job.Clone(), true, nil
}

// GetJob implements core.JobStore.
func (s *Store) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	return job.Clone(), nil
}

// GetJobByDocID implements core.JobStore.
func (s *Store) GetJobByDocID(_ context.Context, docID string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byDocID[docID]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	return s.jobs[id].Clone(), nil
}

// UpdateStatus implements core.JobStore.
func (s *Store) UpdateStatus(_ context.Context, id string, u model.StatusUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return data.ErrJobNotFound
	}
	if !job.Status.CanTransitionTo(u.Status) {
		return data.TransitionConflict(id, job.Status, u.Status)
	}
	u.Apply(job, s.now())
	return nil
}

// RecordDispatch implements core.JobStore.
func (s *Store) RecordDispatch(_ context.Context, id, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return data.ErrJobNotFound
	}
	job.DispatchTaskID = &taskID
	job.UpdatedAt = s.now()
	return nil
}

// AssignDeliveryID implements core.JobStore.
func (s *Store) AssignDeliveryID(_ context.Context, id, candidate string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return "", data.ErrJobNotFound
	}
	if job.DeliveryID == nil {
		job.DeliveryID = &candidate
		job.UpdatedAt = s.now()
	}
	return *job.DeliveryID, nil
}

// MarkDelivered implements core.JobStore.
func (s *Store) MarkDelivered(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, data.ErrJobNotFound
	}
	if job.DeliveredAt != nil {
		return false, nil
	}
	delivered := at.UTC()
	job.DeliveredAt = &delivered
	job.UpdatedAt = s.now()
	return true, nil
}

// ListStale implements core.JobStore.
func (s *Store) ListStale(_ context.Context, before time.Time, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Job
	for _, job := range s.jobs {
		if job.Status.IsTerminal() || !job.UpdatedAt.Before(before) {
			continue
		}
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
