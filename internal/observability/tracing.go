// Package observability wires OpenTelemetry tracing into Genkit.
//
// Traces are exported over OTLP HTTP to a local collector (default
// localhost:4318), which handles authentication, buffering, and
// forwarding to whatever backend the deployment uses. Genkit creates
// spans for every flow, generate call, and tool invocation; registering
// a span processor on its TracerProvider is all that's needed to see
// the full chat pipeline in a trace viewer.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultEndpoint is the default OTLP HTTP collector endpoint.
const DefaultEndpoint = "localhost:4318"

// Config for tracing setup.
type Config struct {
	// Enabled turns span export on. When false Setup is a no-op.
	Enabled bool
	// Endpoint is the OTLP HTTP collector address (default: localhost:4318).
	Endpoint string
	// ServiceName tags exported spans (default: retrofit-api).
	ServiceName string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
}

// Setup registers an OTLP exporter with Genkit's TracerProvider.
// Must run before genkit.Init so the provider is ready when flows
// register.
//
// Returns a shutdown function that flushes pending spans. Exporter
// construction failures disable tracing with a warning rather than
// failing startup.
func Setup(ctx context.Context, cfg Config) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	service := cfg.ServiceName
	if service == "" {
		service = "retrofit-api"
	}

	// Genkit's TracerProvider reads these when it builds its resource.
	_ = os.Setenv("OTEL_SERVICE_NAME", service)
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		slog.Warn("failed to create OTLP exporter, tracing disabled", "error", err)
		return noop
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	slog.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", service,
		"environment", cfg.Environment)

	return tracing.TracerProvider().Shutdown
}
