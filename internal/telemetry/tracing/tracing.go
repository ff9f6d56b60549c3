// Package tracing provides a lightweight OpenTelemetry tracer provider
// with no external exporter wired in; spans are available to any exporter
// installed by the embedding process.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Init builds a TracerProvider for serviceName and installs it as the
// global provider. When enabled is false, a no-op tracer is installed
// instead so callers can unconditionally create spans.
func Init(serviceName string, enabled bool) (*sdktrace.TracerProvider, error) {
	if !enabled {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		return nil, nil
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)
	return tp, nil
}

// Tracer returns the named tracer from the globally installed provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Shutdown flushes and releases tp. Safe to call with a nil tp (the
// disabled-telemetry case).
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}
