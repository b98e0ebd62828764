package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/service"
)

// ServiceName is reported by the root banner.
const ServiceName = "jobpipe"

// Version is reported by the root banner.
var Version = "dev"

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs *service.JobService
	// Health checks keyed by name, e.g. "database" and "queue".
	Health map[string]core.HealthChecker
	// Optional: request body cap, defaults to MaxBodyBytes.
	MaxBodyBytes int64
	// Optional: disables the built-in webhook test receiver when true.
	DisableWebhookReceiver bool
	Logger                 *slog.Logger
}

// NewRouter creates and configures the gateway router with its middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs, Logger: logger}
	mux.HandleFunc("POST /jobs", jobHandlers.CreateJob)
	mux.HandleFunc("GET /jobs/{id}", jobHandlers.GetStatus)

	if !services.DisableWebhookReceiver {
		receiver := &WebhookReceiver{Logger: logger}
		mux.HandleFunc("POST /webhook-receiver", receiver.Receive)
	}

	health := &HealthHandler{Checks: services.Health, Logger: logger}
	mux.Handle("GET /health", health)
	mux.Handle("HEAD /health", health)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	mux.HandleFunc("GET /{$}", rootHandler)
	mux.HandleFunc("/", notFoundHandler)

	limit := services.MaxBodyBytes
	if limit <= 0 {
		limit = MaxBodyBytes
	}

	var handler http.Handler = mux
	handler = BodyLimit(limit)(handler)
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

func rootHandler(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"service": ServiceName,
		"version": Version,
		"health":  "/health",
	})
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, ErrorParams{
		Code:    http.StatusNotFound,
		ErrCode: "not_found",
		Err:     errors.New("route not found"),
	})
}
