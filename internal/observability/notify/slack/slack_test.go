package slack

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

	"github.com/target/mmk-jobpipe/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{WebhookURL: "  "})
	require.Error(t, err)
}

func TestFormatMessageIncludesFields(t *testing.T) {
	c, err := NewClient(Config{WebhookURL: "https://hooks.slack.test/x", Channel: "#alerts"})
	require.NoError(t, err)

	msg := c.formatMessage(notify.JobFailurePayload{
		JobID:            "job-1",
		DocID:            "doc<1>",
		Step:             "deliver",
		Error:            "Webhook returned status 500",
		ErrorClass:       "delivery",
		DeliveryAttempts: 5,
		WebhookHost:      "example.com",
		OccurredAt:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Metadata:         map[string]string{"b": "2", "a": "1"},
	})

	text, ok := msg["text"].(string)
	require.True(t, ok)
	assert.Contains(t, text, "*Job failed* `job-1`")
	assert.Contains(t, text, "• Severity: critical")
	assert.Contains(t, text, "• Doc ID: doc&lt;1&gt;")
	assert.Contains(t, text, "• Step: deliver")
	assert.Contains(t, text, "• Delivery attempts: 5")
	assert.Contains(t, text, "• Webhook host: example.com")
	assert.Contains(t, text, "• Error: Webhook returned status 500")
	assert.Contains(t, text, "    • a: 1\n    • b: 2\n")
	assert.Contains(t, text, "• Timestamp: 2024-01-02T03:04:05Z")
	assert.Equal(t, "#alerts", msg["channel"])
	assert.Equal(t, "jobpipe", msg["username"])
}

func TestFormatMessageJobLink(t *testing.T) {
	c, err := NewClient(Config{WebhookURL: "https://hooks.slack.test/x", JobURLPrefix: "https://jobs.example.com/jobs"})
	require.NoError(t, err)

	text := c.formatMessage(notify.JobFailurePayload{JobID: "abc"})["text"].(string)
	assert.Contains(t, text, "<https://jobs.example.com/jobs/abc|abc>")

	c.jobURLPrefix = "not a url"
	text = c.formatMessage(notify.JobFailurePayload{JobID: "abc"})["text"].(string)
	assert.Contains(t, text, "`abc`")
}

func TestSendJobFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if calls.Add(1) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 2})
	require.NoError(t, err)

	require.NoError(t, c.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendJobFailureReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	err = c.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "nope")
}
