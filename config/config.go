package config

import (
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres, Redis and MongoDB configuration
//   - http.go: HTTP server configuration
//   - pipeline.go: webhook delivery and pipeline configuration
//   - services.go: service mode, worker and redriver configuration
type AppConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// StoreBackend selects the JobStore implementation.
	StoreBackend StoreBackend `env:"STORE_BACKEND" envDefault:"postgres"`

	// QueueBackend selects the TaskQueue implementation.
	QueueBackend QueueBackend `env:"QUEUE_BACKEND" envDefault:"redis"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Mongo    MongoConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,worker"`

	Webhook  WebhookConfig
	Pipeline PipelineConfig
	Worker   WorkerConfig
	Redriver RedriverConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.StoreBackend = StoreBackend(strings.ToLower(strings.TrimSpace(string(c.StoreBackend))))
	c.QueueBackend = QueueBackend(strings.ToLower(strings.TrimSpace(string(c.QueueBackend))))

	c.HTTP.Sanitize()
	c.Mongo.Sanitize()
	c.Webhook.Sanitize()
	c.Pipeline.Sanitize()
	c.Worker.Sanitize()
	c.Redriver.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsWorkerEnabled returns true if the pipeline worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.serviceEnabled(ServiceModeWorker)
}

// IsRedriverEnabled returns true if the stale-job redriver service is enabled.
func (c *AppConfig) IsRedriverEnabled() bool {
	return c.serviceEnabled(ServiceModeRedriver)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// NeedsPostgres reports whether the configured backends require a Postgres connection.
func (c *AppConfig) NeedsPostgres() bool {
	return c.StoreBackend == StoreBackendPostgres
}

// NeedsRedis reports whether the configured backends require a Redis connection.
func (c *AppConfig) NeedsRedis() bool {
	return c.QueueBackend == QueueBackendRedis
}
