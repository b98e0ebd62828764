package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "jobpipe"

// ObservabilityConfig groups configuration that controls metrics and failure fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
	Tracing       ObservabilityTracingConfig
}

// ObservabilityTracingConfig controls the OpenTelemetry trace exporter.
// Spans are always created; they are only exported when tracing is enabled.
type ObservabilityTracingConfig struct {
	Enabled     bool    `env:"OBSERVABILITY_TRACING_ENABLED"      envDefault:"false"`
	PrettyPrint bool    `env:"OBSERVABILITY_TRACING_PRETTY_PRINT" envDefault:"false"`
	SampleRatio float64 `env:"OBSERVABILITY_TRACING_SAMPLE_RATIO" envDefault:"1"`
}

// Sanitize clamps the sample ratio into [0, 1].
func (c *ObservabilityTracingConfig) Sanitize() {
	if c.SampleRatio < 0 {
		c.SampleRatio = 0
	}
	if c.SampleRatio > 1 {
		c.SampleRatio = 1
	}
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
	c.Tracing.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"jobpipe"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls outbound notifications for jobs that end FAILED.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                    `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration           `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                     `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig `                                                             envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.sanitize()

	if !c.Enabled || c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled      bool   `env:"ENABLED"        envDefault:"false"`
	WebhookURL   string `env:"WEBHOOK_URL"`
	Channel      string `env:"CHANNEL"`
	Username     string `env:"USERNAME"       envDefault:"jobpipe"`
	JobURLPrefix string `env:"JOB_URL_PREFIX"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.JobURLPrefix = strings.TrimSpace(c.JobURLPrefix)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultObservabilityName
	}
}
