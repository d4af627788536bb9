// Package telemetry provides OpenTelemetry tracing and metrics for the
// pipeline core. Disabled by default: a nil or disabled Provider is safe to
// call and records nothing.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // e.g. "localhost:4317"
	Enabled        bool
	BatchTimeout   time.Duration
}

// DefaultConfig returns the service defaults with telemetry off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "restage-core",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider holds the trace/metric providers and the pipeline instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer

	transitionCounter metric.Int64Counter
	retryCounter      metric.Int64Counter
	purgeCounter      metric.Int64Counter
	cacheCounter      metric.Int64Counter
}

// New creates a Provider. When cfg.Enabled is false the Provider is inert.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{config: cfg}
	if !cfg.Enabled {
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	p.tracer = p.tracerProvider.Tracer("restage/core")

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(p.meterProvider)
	meter := p.meterProvider.Meter("restage/core")

	if p.transitionCounter, err = meter.Int64Counter("restage.project.transitions",
		metric.WithDescription("Project lifecycle transitions")); err != nil {
		return nil, err
	}
	if p.retryCounter, err = meter.Int64Counter("restage.activity.retries",
		metric.WithDescription("Activity re-dispatches after retryable failures")); err != nil {
		return nil, err
	}
	if p.purgeCounter, err = meter.Int64Counter("restage.purge.requests",
		metric.WithDescription("Purge requests issued")); err != nil {
		return nil, err
	}
	if p.cacheCounter, err = meter.Int64Counter("restage.cache.lookups",
		metric.WithDescription("Response cache lookups")); err != nil {
		return nil, err
	}
	return p, nil
}

// Enabled reports whether the provider records anything.
func (p *Provider) Enabled() bool { return p != nil && p.config != nil && p.config.Enabled }

// RecordTransition counts one lifecycle transition.
func (p *Provider) RecordTransition(ctx context.Context, from, to, trigger string) {
	if !p.Enabled() {
		return
	}
	p.transitionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("trigger", trigger),
	))
}

// RecordRetry counts one activity re-dispatch.
func (p *Provider) RecordRetry(ctx context.Context, activityName string) {
	if !p.Enabled() {
		return
	}
	p.retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("activity", activityName)))
}

// RecordPurgeRequest counts one purge request.
func (p *Provider) RecordPurgeRequest(ctx context.Context, reason string) {
	if !p.Enabled() {
		return
	}
	p.purgeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordCacheLookup counts one response-cache lookup.
func (p *Provider) RecordCacheLookup(ctx context.Context, namespace string, hit bool) {
	if !p.Enabled() {
		return
	}
	p.cacheCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.Bool("hit", hit),
	))
}

// StartSpan opens a span when tracing is enabled, otherwise a no-op span.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if !p.Enabled() {
		return trace.NewNoopTracerProvider().Tracer("").Start(ctx, name)
	}
	return p.tracer.Start(ctx, name)
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	var first error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		first = err
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil && first == nil {
		first = err
	}
	return first
}
