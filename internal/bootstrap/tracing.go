package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/target/mmk-jobpipe/config"
)

// TracingShutdown flushes and stops the tracer provider.
type TracingShutdown func(ctx context.Context) error

// InitTracing installs a global tracer provider that exports spans to stdout.
// When tracing is disabled the global no-op provider stays in place.
func InitTracing(cfg config.ObservabilityTracingConfig, logger *slog.Logger) (TracingShutdown, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(os.Stdout)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return noop, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "jobpipe"))),
	)
	otel.SetTracerProvider(tp)

	if logger != nil {
		logger.Info("tracing enabled", "exporter", "stdout", "sample_ratio", cfg.SampleRatio)
	}
	return tp.Shutdown, nil
}
