package observability

import (
	"context"
	"fmt"
	"strings"

	"archguard/internal/shared/version"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "archguard"

// Tracer is the engine-wide tracer. It resolves through the global provider so
// spans are no-ops until SetupTracing installs an exporter.
var Tracer trace.Tracer = otel.Tracer(instrumentationName)

// TracingConfig selects the OTLP endpoint; an empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// SetupTracing installs an OTLP gRPC exporter as the global tracer provider.
// The returned shutdown func flushes pending spans.
func SetupTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = instrumentationName
	}
	res := sdkresource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version.Version),
	)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	Tracer = provider.Tracer(instrumentationName)
	return provider.Shutdown, nil
}
