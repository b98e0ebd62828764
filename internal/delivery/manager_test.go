package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/data/memory"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	"github.com/target/mmk-jobpipe/internal/observability/metrics"
	"github.com/target/mmk-jobpipe/internal/testutil"
)

type recordingWaiter struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *recordingWaiter) Wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	return ctx.Err()
}

func (w *recordingWaiter) Waits() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.waits...)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type fixture struct {
	store  *memory.Store
	waiter *recordingWaiter
	rec    *metrics.Recorder
	job    *model.Job
}

func newFixture(t *testing.T, webhookURL string) *fixture {
	t.Helper()
	store := memory.NewStore(memory.WithTimeProvider(testutil.NewTestTimeProvider(testutil.TestTime())))
	ctx := context.Background()

	job, _, err := store.CreateJob(ctx, "doc-"+t.Name(), json.RawMessage(`{"a":1}`), webhookURL)
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, job.ID, model.StatusUpdate{
		Status: model.JobStatusRunning,
		Step:   model.StepPtr(model.StepDeliver),
	}))
	job, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)

	return &fixture{store: store, waiter: &recordingWaiter{}, rec: metrics.NewRecorder(), job: job}
}

func (f *fixture) manager(t *testing.T, maxRetries int, client *http.Client) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		Store:      f.store,
		HTTPClient: client,
		Config: config.WebhookConfig{
			TimeoutSeconds:   5,
			MaxRetries:       maxRetries,
			RetryBackoffBase: 2,
			MaxBackoff:       5 * time.Minute,
		},
		Waiter:  f.waiter,
		Metrics: f.rec,
		Now:     testutil.TestTime,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) request() Request {
	return Request{Job: f.job, Result: json.RawMessage(`{"job_id":"` + f.job.ID + `"}`), DeliveryID: "delivery-key"}
}

func TestDeliverWithRetry_FirstAttemptSucceeds(t *testing.T) {
	var got *http.Request
	var body model.WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	res, err := f.manager(t, 5, nil).DeliverWithRetry(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, KindDelivered, res.Kind)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, testutil.TestTime(), res.DeliveredAt)

	require.NotNil(t, got)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "delivery-key", got.Header.Get(model.HeaderIdempotencyKey))
	assert.Equal(t, f.job.ID, got.Header.Get(model.HeaderJobID))
	assert.Equal(t, "1", got.Header.Get(model.HeaderDeliveryAttempt))
	assert.Equal(t, f.job.ID, body.JobID)
	assert.Equal(t, model.WebhookStatusCompleted, body.Status)
	assert.JSONEq(t, `{"job_id":"`+f.job.ID+`"}`, string(body.Result))

	stored, err := f.store.GetJob(context.Background(), f.job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeliveredAt)
	assert.Zero(t, stored.DeliveryAttempts)
	assert.Empty(t, f.waiter.Waits())
	assert.Equal(t, int64(1), f.rec.Counts(metrics.NameDeliveryAttempt, map[string]string{"result": metrics.ResultSuccess}))
}

func TestDeliverWithRetry_RecoversAfterServerErrors(t *testing.T) {
	var calls atomic.Int32
	var attempts []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts = append(attempts, r.Header.Get(model.HeaderDeliveryAttempt))
		mu.Unlock()
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	res, err := f.manager(t, 5, nil).DeliverWithRetry(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, KindDelivered, res.Kind)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []string{"1", "2", "3"}, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.waiter.Waits())

	stored, err := f.store.GetJob(context.Background(), f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.DeliveryAttempts)
	assert.Equal(t, model.JobStatusRetrying, stored.Status)
	assert.Nil(t, stored.ErrorMessage)
	require.NotNil(t, stored.DeliveredAt)
}

func TestDeliverWithRetry_ExhaustsOnTimeouts(t *testing.T) {
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, context.DeadlineExceeded
	})}

	f := newFixture(t, "https://hooks.example.com/cb")
	res, err := f.manager(t, 4, client).DeliverWithRetry(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, KindFailed, res.Kind)
	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, "Webhook request timed out", res.LastError)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, f.waiter.Waits())

	stored, err := f.store.GetJob(context.Background(), f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.DeliveryAttempts)
	assert.Nil(t, stored.DeliveredAt)
}

func TestDeliverWithRetry_TransportError(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}

	f := newFixture(t, "https://hooks.example.com/cb")
	res, err := f.manager(t, 0, client).DeliverWithRetry(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, KindFailed, res.Kind)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.LastError, "Request error: ")
	assert.Contains(t, res.LastError, "connection refused")
	assert.Empty(t, f.waiter.Waits())
}

func TestDeliverWithRetry_SkipsAlreadyDelivered(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	earlier := testutil.TestTime().Add(-time.Hour)
	_, err := f.store.MarkDelivered(context.Background(), f.job.ID, earlier)
	require.NoError(t, err)

	res, err := f.manager(t, 5, nil).DeliverWithRetry(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, KindDelivered, res.Kind)
	assert.Equal(t, earlier, res.DeliveredAt)
	assert.Zero(t, res.Attempts)
	assert.Zero(t, calls.Load())
}

func TestDeliverWithRetry_SupersededWhenJobMovesTerminal(t *testing.T) {
	var f *fixture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		assert.NoError(t, f.store.UpdateStatus(context.Background(), f.job.ID, model.StatusUpdate{
			Status:       model.JobStatusFailed,
			ErrorMessage: testutil.StringPtr("failed elsewhere"),
		}))
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f = newFixture(t, srv.URL)
	res, err := f.manager(t, 3, nil).DeliverWithRetry(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, KindSuperseded, res.Kind)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, f.waiter.Waits())
}

func TestDeliverWithRetry_ConcurrentInvocationsClaimOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	var tick atomic.Int64
	m, err := NewManager(Options{
		Store:  f.store,
		Config: config.WebhookConfig{TimeoutSeconds: 5, MaxRetries: 2, RetryBackoffBase: 2},
		Waiter: f.waiter,
		Now: func() time.Time {
			return testutil.TestTime().Add(time.Duration(tick.Add(1)) * time.Second)
		},
	})
	require.NoError(t, err)

	results := make([]Result, 8)
	errs := testutil.RunConcurrent(func() []func() error {
		fns := make([]func() error, len(results))
		for i := range fns {
			fns[i] = func() error {
				var runErr error
				results[i], runErr = m.DeliverWithRetry(context.Background(), f.request())
				return runErr
			}
		}
		return fns
	}()...)
	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.store.GetJob(context.Background(), f.job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeliveredAt)
	for _, res := range results {
		assert.Equal(t, KindDelivered, res.Kind)
		assert.Equal(t, *stored.DeliveredAt, res.DeliveredAt, "every invocation reports the single recorded timestamp")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestDeliverWithRetry_CanceledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	m, err := NewManager(Options{
		Store:  f.store,
		Config: config.WebhookConfig{TimeoutSeconds: 5, MaxRetries: 3, RetryBackoffBase: 2},
		Waiter: WaiterFunc(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	})
	require.NoError(t, err)

	_, err = m.DeliverWithRetry(ctx, f.request())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeliverWithRetry_EmitsSpanPerAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	f := newFixture(t, srv.URL)
	m, err := NewManager(Options{
		Store:  f.store,
		Config: config.WebhookConfig{TimeoutSeconds: 5, MaxRetries: 1, RetryBackoffBase: 2},
		Waiter: f.waiter,
		Tracer: tp.Tracer(TracerName),
	})
	require.NoError(t, err)

	res, err := m.DeliverWithRetry(context.Background(), f.request())
	require.NoError(t, err)
	require.Equal(t, KindDelivered, res.Kind)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "delivery.attempt", spans[0].Name())
	assert.Equal(t, otelcodes.Error, spans[0].Status().Code)
	assert.Equal(t, otelcodes.Ok, spans[1].Status().Code)

	var attempt string
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "delivery.attempt" {
			attempt = strconv.FormatInt(kv.Value.AsInt64(), 10)
		}
	}
	assert.Equal(t, "2", attempt)
}

func TestNewManager_RequiresStore(t *testing.T) {
	_, err := NewManager(Options{})
	assert.Error(t, err)
	assert.Panics(t, func() { MustNewManager(Options{}) })
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		base  float64
		retry int
		max   time.Duration
		want  time.Duration
	}{
		{2, 0, time.Minute, 0},
		{2, 1, time.Minute, 2 * time.Second},
		{2, 3, time.Minute, 8 * time.Second},
		{2, 10, time.Minute, time.Minute},
		{1.5, 2, time.Minute, 2250 * time.Millisecond},
		{10, 400, time.Hour, time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.base, tt.retry, tt.max), "base=%v retry=%d", tt.base, tt.retry)
	}
}

func TestTimerWaiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, TimerWaiter{}.Wait(ctx, time.Hour), context.Canceled)
	assert.NoError(t, TimerWaiter{}.Wait(context.Background(), time.Millisecond))
}
