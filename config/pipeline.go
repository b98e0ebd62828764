package config

import "time"

// WebhookConfig controls how results are delivered to job callbacks.
type WebhookConfig struct {
	// TimeoutSeconds bounds each individual webhook request.
	TimeoutSeconds int `env:"WEBHOOK_TIMEOUT_SECONDS" envDefault:"30"`

	// MaxRetries is the number of attempts allowed after the first one.
	MaxRetries int `env:"WEBHOOK_MAX_RETRIES" envDefault:"5"`

	// RetryBackoffBase is raised to the retry ordinal to get the wait in seconds.
	RetryBackoffBase float64 `env:"WEBHOOK_RETRY_BACKOFF_BASE" envDefault:"2"`

	// MaxBackoff caps a single backoff wait.
	MaxBackoff time.Duration `env:"WEBHOOK_MAX_BACKOFF" envDefault:"5m"`

	// RateLimit is the maximum outbound webhook requests per second per process (0 = unlimited).
	RateLimit float64 `env:"WEBHOOK_RATE_LIMIT" envDefault:"0"`
	RateBurst int     `env:"WEBHOOK_RATE_BURST" envDefault:"1"`
}

// Sanitize applies guardrails to webhook configuration values.
func (w *WebhookConfig) Sanitize() {
	if w.TimeoutSeconds < 1 {
		w.TimeoutSeconds = 1
	}
	if w.MaxRetries < 0 {
		w.MaxRetries = 0
	}
	if w.RetryBackoffBase < 1 {
		w.RetryBackoffBase = 1
	}
	if w.MaxBackoff <= 0 {
		w.MaxBackoff = 5 * time.Minute
	}
	if w.RateLimit < 0 {
		w.RateLimit = 0
	}
	if w.RateBurst < 1 {
		w.RateBurst = 1
	}
}

// Timeout returns the per-request timeout as a duration.
func (w *WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// PipelineConfig contains settings for the step pipeline itself.
type PipelineConfig struct {
	// TransformDelay simulates processing time before the transform step.
	TransformDelay time.Duration `env:"PIPELINE_TRANSFORM_DELAY" envDefault:"0s"`
}

// Sanitize applies guardrails to pipeline configuration values.
func (p *PipelineConfig) Sanitize() {
	if p.TransformDelay < 0 {
		p.TransformDelay = 0
	}
}
