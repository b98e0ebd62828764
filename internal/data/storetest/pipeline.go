package storetest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/delivery"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	"github.com/target/mmk-jobpipe/internal/pipeline"
	"github.com/target/mmk-jobpipe/internal/testutil"
)

var noWait = delivery.WaiterFunc(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })

func runPipeline(t *testing.T, s core.JobStore, docID, payload string, maxRetries int, status func(call int32) int) (*model.Job, int32) {
	t.Helper()
	ctx := context.Background()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status(calls.Add(1)))
	}))
	defer srv.Close()

	job, _, err := s.CreateJob(ctx, docID, json.RawMessage(payload), srv.URL)
	require.NoError(t, err)

	manager := delivery.MustNewManager(delivery.Options{
		Store: s,
		Config: config.WebhookConfig{
			TimeoutSeconds:   5,
			MaxRetries:       maxRetries,
			RetryBackoffBase: 2,
			MaxBackoff:       time.Minute,
		},
		Waiter: noWait,
	})
	o := pipeline.MustNewOrchestrator(pipeline.Options{Store: s, Deliverer: manager, Waiter: noWait})

	_, err = o.Run(ctx, job.ID)
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	return got, calls.Load()
}

// Error text stays off recovered jobs and results stay off failed ones.
func pipelineFieldInvariants(t *testing.T, s core.JobStore, _ *testutil.TestTimeProvider) {
	t.Run("recovered delivery has no error message", func(t *testing.T) {
		got, calls := runPipeline(t, s, "recovers", `{"x":1}`, 5, func(call int32) int {
			if call <= 2 {
				return http.StatusInternalServerError
			}
			return http.StatusOK
		})
		assert.Equal(t, model.JobStatusSucceeded, got.Status)
		assert.Equal(t, 2, got.DeliveryAttempts)
		assert.Equal(t, int32(3), calls)
		assert.Nil(t, got.ErrorMessage)
		assert.NotEmpty(t, got.Result)
		assert.NotNil(t, got.DeliveredAt)
	})

	t.Run("exhausted delivery has no result", func(t *testing.T) {
		got, calls := runPipeline(t, s, "exhausts", `{"x":1}`, 1, func(int32) int {
			return http.StatusInternalServerError
		})
		assert.Equal(t, model.JobStatusFailed, got.Status)
		assert.Equal(t, 1, got.DeliveryAttempts)
		assert.Equal(t, int32(2), calls)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "Webhook returned status 500", *got.ErrorMessage)
		assert.Empty(t, got.Result)
		assert.Nil(t, got.DeliveredAt)
	})

	t.Run("validation failure has no result", func(t *testing.T) {
		got, calls := runPipeline(t, s, "scalar", `42`, 5, func(int32) int { return http.StatusOK })
		assert.Equal(t, model.JobStatusFailed, got.Status)
		require.NotNil(t, got.CurrentStep)
		assert.Equal(t, model.StepValidate, *got.CurrentStep)
		assert.Zero(t, calls)
		require.NotNil(t, got.ErrorMessage)
		assert.Empty(t, got.Result)
		assert.Nil(t, got.DeliveredAt)
	})
}
