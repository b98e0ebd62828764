package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/target/mmk-jobpipe/internal/core"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
	healthCheckOK         = "ok"
	defaultHealthTimeout  = 2 * time.Second
)

// HealthResponse is the body returned by the health endpoints.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler pings each named dependency and reports the aggregate.
type HealthHandler struct {
	Checks  map[string]core.HealthChecker
	Timeout time.Duration
	Logger  *slog.Logger
}

// ServeHTTP answers 200 when every check passes and 503 otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := HealthResponse{
		Status:    healthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]string, len(h.Checks)),
	}

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checker := h.Checks[name]
		if checker == nil {
			continue
		}
		if err := checker.Ping(ctx); err != nil {
			resp.Status = healthStatusUnhealthy
			resp.Checks[name] = "error: " + err.Error()
			if h.Logger != nil {
				h.Logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			}
			continue
		}
		resp.Checks[name] = healthCheckOK
	}

	code := http.StatusOK
	if resp.Status != healthStatusHealthy {
		code = http.StatusServiceUnavailable
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(code)
		return
	}
	WriteJSON(w, code, resp)
}
