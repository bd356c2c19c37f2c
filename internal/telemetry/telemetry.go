// Package telemetry bootstraps the process-wide OpenTelemetry TracerProvider
// that internal/agentloop and internal/extensions/dispatcher emit spans
// against. Tracing is opt-in: with CLAUDE_CODE_TRACE unset, Setup leaves the
// global no-op tracer in place so every tracer.Start call elsewhere in the
// tree costs nothing.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config controls whether and where traces are written.
type Config struct {
	// Enabled turns on span export. Off by default.
	Enabled bool
	// ServiceVersion is reported as the service.version resource attribute.
	ServiceVersion string
	// Writer receives one JSON object per span. Defaults to os.Stderr so
	// trace output never interleaves with a command's stdout.
	Writer io.Writer
}

// ConfigFromEnv reads CLAUDE_CODE_TRACE ("1"/"true") to decide whether
// tracing is enabled, mirroring the other CLAUDE_CODE_* toggles the CLI
// reads at startup.
func ConfigFromEnv(version string) Config {
	v := os.Getenv("CLAUDE_CODE_TRACE")
	return Config{
		Enabled:        v == "1" || v == "true",
		ServiceVersion: version,
	}
}

// noopShutdown is returned whenever tracing stays off, so callers can always
// `defer shutdown(ctx)` unconditionally.
func noopShutdown(context.Context) error { return nil }

// Setup installs a batching span processor writing to cfg.Writer (or stderr)
// as the global TracerProvider, returning a shutdown func that flushes and
// closes the exporter. When cfg.Enabled is false it leaves otel's built-in
// no-op TracerProvider in place.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: new exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("claude"),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
