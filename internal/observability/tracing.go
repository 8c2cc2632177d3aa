// Package observability configures OpenTelemetry trace export.
//
// Spans are shipped over OTLP HTTP to a local collector (default
// localhost:4318), which handles buffering and forwarding to whatever
// backend is deployed. When tracing is disabled the global tracer
// provider stays a no-op, so instrumentation in the rest of the
// codebase costs nothing.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/boganlabs/bogan/internal/config"
	"github.com/boganlabs/bogan/internal/log"
)

// DefaultEndpoint is the default OTLP HTTP collector endpoint.
const DefaultEndpoint = "localhost:4318"

// Setup installs the global tracer provider and returns a shutdown
// function that flushes pending spans. Exporter construction failure
// degrades to no tracing rather than failing startup.
func Setup(ctx context.Context, cfg config.TracingConfig, logger log.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating trace exporter failed, tracing disabled", "error", err)
		return noop
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironmentName(cfg.Environment),
	))
	if err != nil {
		logger.Warn("building trace resource failed, tracing disabled", "error", err)
		return noop
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)
	return provider.Shutdown
}
