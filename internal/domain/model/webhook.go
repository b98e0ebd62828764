package model

import (
	"encoding/json"
	"time"
)

// Headers presented on every webhook delivery request.
const (
	HeaderIdempotencyKey  = "X-Idempotency-Key"
	HeaderJobID           = "X-Job-ID"
	HeaderDeliveryAttempt = "X-Delivery-Attempt"
)

// WebhookStatusCompleted is the only status marker sent to receivers.
const WebhookStatusCompleted = "completed"

// WebhookPayload is the JSON body POSTed to a job's webhook_url.
type WebhookPayload struct {
	JobID       string          `json:"job_id"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result"`
	DeliveredAt time.Time       `json:"delivered_at"`
}

// WebhookReceipt is the acknowledgement returned by the built-in test receiver.
type WebhookReceipt struct {
	Received       bool      `json:"received"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	JobID          string    `json:"job_id,omitempty"`
	Attempt        string    `json:"attempt,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
