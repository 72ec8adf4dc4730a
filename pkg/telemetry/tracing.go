// Package telemetry configures OpenTelemetry tracing for the service.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config configures trace export.
type Config struct {
	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is recorded as a resource attribute.
	ServiceVersion string

	// Environment is recorded as deployment.environment when set.
	Environment string

	// Endpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Tracing is disabled when empty.
	Endpoint string

	// Insecure disables TLS for the collector connection.
	Insecure bool

	// SamplingRate is the fraction of traces recorded. Zero means all.
	SamplingRate float64
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup installs a global tracer provider exporting to cfg.Endpoint. With no
// endpoint the global no-op provider is left in place.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return noopShutdown, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return noopShutdown, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg)...))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("tracing enabled", "endpoint", cfg.Endpoint, "sampling_rate", cfg.SamplingRate)
	return provider.Shutdown, nil
}

func resourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	return attrs
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate == 0 || rate >= 1:
		return sdktrace.AlwaysSample()
	case rate < 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}
