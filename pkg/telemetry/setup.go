package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	oteltracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Setup installs the global tracer provider and propagator. Exporters are
// chosen from the OTEL_* environment; with none configured spans are
// discarded. The returned func flushes and shuts the provider down.
func Setup(ctx context.Context, service string) (func(context.Context) error, error) {
	var tracingNotConfigured bool
	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())
	traceExporter, err := autoexport.NewSpanExporter(ctx, autoexport.WithFallbackSpanExporter(func(ctx context.Context) (oteltracesdk.SpanExporter, error) {
		tracingNotConfigured = true
		return tracetest.NewNoopExporter(), nil
	}))
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	var (
		tracerProvider oteltrace.TracerProvider
		shutdown       func(context.Context) error
	)
	if tracingNotConfigured {
		tracerProvider = noop.NewTracerProvider()
		shutdown = func(context.Context) error { return nil }
	} else {
		otelResource, err := OtelResource(ctx, service)
		if err != nil {
			return nil, fmt.Errorf("creating otel resource: %w", err)
		}
		tp := oteltracesdk.NewTracerProvider(
			oteltracesdk.WithBatcher(traceExporter),
			oteltracesdk.WithResource(otelResource),
		)
		shutdown = tp.Shutdown
		tracerProvider = tp
	}
	otel.SetTracerProvider(tracerProvider)
	return shutdown, nil
}
