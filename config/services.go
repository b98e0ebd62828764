package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the submission and status API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker consumes the task queue and runs the pipeline.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeRedriver re-enqueues jobs abandoned by crashed workers.
	ServiceModeRedriver ServiceMode = "redriver"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeRedriver,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeRedriver:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, redriver)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains pipeline worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of jobs processed in parallel; each worker runs one job end to end.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// MaxDeliveries is how many times a task is handed to a worker before it is dead-lettered.
	MaxDeliveries int `env:"WORKER_MAX_DELIVERIES" envDefault:"5"`

	// VisibilityTimeout is how long a claimed task may stay unacknowledged before it is redelivered.
	// It must exceed the worst-case delivery retry schedule.
	VisibilityTimeout time.Duration `env:"WORKER_VISIBILITY_TIMEOUT" envDefault:"30m"`

	// ReclaimInterval controls how often expired claims are swept back to pending.
	ReclaimInterval time.Duration `env:"WORKER_RECLAIM_INTERVAL" envDefault:"30s"`

	// RedeliveryDelay is how long a task that returned an error waits before it is handed out again.
	RedeliveryDelay time.Duration `env:"WORKER_REDELIVERY_DELAY" envDefault:"5s"`

	// QueueKeyPrefix namespaces the Redis queue keys. Use a hash tag such as "{jobpipe}" on Redis Cluster.
	QueueKeyPrefix string `env:"WORKER_QUEUE_KEY_PREFIX" envDefault:"jobpipe"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.MaxDeliveries < 1 {
		w.MaxDeliveries = 1
	}
	if w.VisibilityTimeout < time.Minute {
		w.VisibilityTimeout = time.Minute
	}
	if w.ReclaimInterval < time.Second {
		w.ReclaimInterval = time.Second
	}
	if w.RedeliveryDelay < 0 {
		w.RedeliveryDelay = 0
	}
	w.QueueKeyPrefix = strings.TrimSpace(w.QueueKeyPrefix)
	if w.QueueKeyPrefix == "" {
		w.QueueKeyPrefix = "jobpipe"
	}
}

// RedriverConfig contains stale-job redriver configuration.
type RedriverConfig struct {
	// Interval is the redriver tick interval.
	Interval time.Duration `env:"REDRIVER_INTERVAL" envDefault:"1m"`

	// StaleAfter is how long a non-terminal job may go without an update before it is re-enqueued.
	StaleAfter time.Duration `env:"REDRIVER_STALE_AFTER" envDefault:"15m"`

	// BatchSize is the maximum number of jobs re-enqueued per tick.
	BatchSize int `env:"REDRIVER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to redriver configuration values.
func (r *RedriverConfig) Sanitize() {
	if r.Interval < 5*time.Second {
		r.Interval = 5 * time.Second
	}
	if r.StaleAfter < time.Minute {
		r.StaleAfter = time.Minute
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
