// Package tracing sets up the OpenTelemetry tracer used for run and step spans.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ServiceName is reported on every span.
const ServiceName = "tutorgraph"

// Config holds tracing configuration.
type Config struct {
	// Endpoint is the OTLP gRPC collector address (e.g. "localhost:4317"). Empty disables tracing.
	Endpoint string
	// Insecure disables TLS towards the collector.
	Insecure bool
}

// Provider owns the tracer provider and flushes it on Shutdown.
type Provider struct {
	tp     *sdktrace.TracerProvider
	logger *slog.Logger
}

// NewProvider exports spans to the configured OTLP endpoint.
// With no endpoint it returns a disabled provider whose tracer records nothing.
func NewProvider(ctx context.Context, cfg Config, version string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled")
		return &Provider{logger: logger}, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	p, err := newProvider(ctx, sdktrace.WithBatcher(exporter), version, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("tracing enabled", "endpoint", cfg.Endpoint)
	return p, nil
}

func newProvider(ctx context.Context, processor sdktrace.TracerProviderOption, version string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(strings.TrimSpace(version)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp, logger: logger}, nil
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p.tp != nil
}

// Tracer returns the tracer for the engine.
func (p *Provider) Tracer() trace.Tracer {
	if p.tp == nil {
		return noop.NewTracerProvider().Tracer(ServiceName)
	}
	return p.tp.Tracer(ServiceName)
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		p.logger.Warn("failed to shut down tracer provider", "err", err)
		return err
	}
	return nil
}
