package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/mmk-jobpipe/internal/domain/model"
)

// WebhookReceiver is a test endpoint that acknowledges job completion webhooks.
type WebhookReceiver struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Receive logs the delivery headers and body and acknowledges receipt.
func (h *WebhookReceiver) Receive(w http.ResponseWriter, r *http.Request) {
	var payload model.WebhookPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	key := r.Header.Get(model.HeaderIdempotencyKey)
	attempt := r.Header.Get(model.HeaderDeliveryAttempt)
	if attempt == "" {
		attempt = "1"
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(r.Context(), "webhook received",
		"job_id", payload.JobID,
		"idempotency_key", key,
		"attempt", attempt,
		"status", payload.Status,
		"has_result", len(payload.Result) > 0 && string(payload.Result) != "null",
	)

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	WriteJSON(w, http.StatusOK, model.WebhookReceipt{
		Received:       true,
		IdempotencyKey: key,
		JobID:          payload.JobID,
		Attempt:        attempt,
		Timestamp:      now().UTC(),
	})
}
