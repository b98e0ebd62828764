package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/adapters/jobrunner"
	"github.com/target/mmk-jobpipe/internal/domain/model"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{name: "no services enabled", want: 0},
		{name: "http only", modes: []config.ServiceMode{config.ServiceModeHTTP}, want: 1},
		{
			name:  "http and worker",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeWorker},
			want:  2,
		},
		{
			name:  "all services enabled",
			modes: config.ValidServiceModes(),
			want:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
			if got := errorChannelBufferSize(enabled); got != tt.want+1 {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want+1)
			}
		})
	}
}

func TestValidateServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AppConfig
		wantErr bool
	}{
		{
			name: "defaults",
			cfg:  config.AppConfig{Services: "http,worker", StoreBackend: config.StoreBackendPostgres, QueueBackend: config.QueueBackendRedis},
		},
		{
			name:    "invalid service",
			cfg:     config.AppConfig{Services: "scheduler"},
			wantErr: true,
		},
		{
			name: "local queue with http and worker",
			cfg:  config.AppConfig{Services: "http,worker", QueueBackend: config.QueueBackendLocal},
		},
		{
			name:    "local queue split across processes",
			cfg:     config.AppConfig{Services: "http", QueueBackend: config.QueueBackendLocal},
			wantErr: true,
		},
		{
			name:    "memory store without worker",
			cfg:     config.AppConfig{Services: "http,redriver", StoreBackend: config.StoreBackendMemory, QueueBackend: config.QueueBackendRedis},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceConfig(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.Error(t, ValidateServiceConfig(nil))
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "worker,http,redriver"}
	assert.Equal(t, []string{"http", "redriver", "worker"}, GetEnabledServices(cfg))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(config.ObservabilityTracingConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestOpenBackends_UnknownBackend(t *testing.T) {
	_, err := OpenBackends(context.Background(), BackendsConfig{
		Config: &config.AppConfig{StoreBackend: "cassandra"},
	})
	assert.ErrorContains(t, err, "unknown store backend")

	_, err = OpenBackends(context.Background(), BackendsConfig{})
	assert.Error(t, err)
}

// In-process wiring end to end: submit through the job service, let the worker
// consume the local queue, and observe the webhook call.
func TestNewServices_InProcessPipeline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var calls atomic.Int32
	received := make(chan model.WebhookPayload, 1)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var p model.WebhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		select {
		case received <- p:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	cfg := &config.AppConfig{
		Services:     "http,worker",
		StoreBackend: config.StoreBackendMemory,
		QueueBackend: config.QueueBackendLocal,
		Webhook:      config.WebhookConfig{TimeoutSeconds: 5, MaxRetries: 1, RetryBackoffBase: 1},
		Worker:       config.WorkerConfig{Concurrency: 2, MaxDeliveries: 3},
	}
	cfg.Sanitize()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := OpenBackends(ctx, BackendsConfig{Config: cfg, Logger: logger})
	require.NoError(t, err)
	defer func() { _ = backends.Close(context.Background()) }()
	assert.Len(t, backends.HealthChecks(), 2)

	services, err := NewServices(&ServiceDeps{Config: cfg, Backends: backends, Logger: logger})
	require.NoError(t, err)

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Consumer: backends.Queue,
		Pipeline: services.Orchestrator,
		Logger:   logger,
	})
	require.NoError(t, err)
	runDone := make(chan error, 1)
	go func() { runDone <- runner.Run(ctx) }()

	resp, err := services.Jobs.Submit(ctx, model.CreateJobRequest{
		DocID:      "doc-e2e",
		Payload:    json.RawMessage(`{"k":"v"}`),
		WebhookURL: webhook.URL,
	})
	require.NoError(t, err)
	require.True(t, resp.IsNew)

	select {
	case p := <-received:
		assert.Equal(t, resp.JobID, p.JobID)
		assert.Equal(t, model.WebhookStatusCompleted, p.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not called")
	}

	require.Eventually(t, func() bool {
		job, getErr := services.Jobs.Status(ctx, resp.JobID)
		return getErr == nil && job.Status == model.JobStatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}
