// Package telemetry installs the process-wide OpenTelemetry tracer used to
// trace agent turns, tool dispatch, and hook execution, grounded on the
// sibling telemetry setup used elsewhere in the retrieved pack. amcp has no
// OTLP collector dependency by default: Init wires a stdout exporter so
// spans are visible without standing up a collector, matching a CLI-first
// tool's operating environment.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/amcp-dev/amcp"

// Shutdown flushes and stops the tracer provider installed by Init.
type Shutdown func(ctx context.Context) error

var noopShutdown Shutdown = func(ctx context.Context) error { return nil }

// Init installs a process-wide TracerProvider. When enabled is false, the
// SDK's default no-op provider stays installed and Tracer() calls are free.
func Init(ctx context.Context, serviceName, version string, enabled bool) (Shutdown, error) {
	if !enabled {
		return noopShutdown, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns amcp's tracer. Safe to call before Init; it resolves to the
// no-op tracer until a real provider is installed.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
