// Package telemetry initializes OpenTelemetry tracing for the pipeline
// executor and exposes a span-per-rule-execution helper. Adapted from the
// teacher module's otel/init.go: same OTLP/HTTP exporter, resource, and
// sampler setup, generalized from "one HTTP request span" to "one rule
// execution span" and stripped of the echo-specific correlation helpers
// this module has no HTTP request context to attach to.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the knobs Init reads from the environment.
type Config struct {
	ServiceName   string
	OTLPEndpoint  string
	Enabled       bool
	SamplingRatio float64
	Environment   string
}

// Provider wraps the process-wide TracerProvider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

var active *Provider

// Init sets up the global tracer provider from environment variables
// (OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SAMPLING_RATIO,
// OTEL_ENVIRONMENT), following the same precedence as the teacher module.
// A disabled or failed initialization falls back to a no-op tracer so
// StartRuleSpan is always safe to call.
func Init(serviceName string) *Provider {
	cfg := Config{ServiceName: serviceName}
	cfg.Enabled = os.Getenv("OTEL_ENABLED") != "false"
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "http://localhost:4318"
	}
	cfg.SamplingRatio = 1.0
	if ratio, err := strconv.ParseFloat(os.Getenv("OTEL_SAMPLING_RATIO"), 64); err == nil {
		cfg.SamplingRatio = ratio
	}
	cfg.Environment = os.Getenv("OTEL_ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if !cfg.Enabled {
		active = &Provider{tracer: otel.Tracer(serviceName)}
		return active
	}

	p, err := newProvider(cfg)
	if err != nil {
		active = &Provider{tracer: otel.Tracer(serviceName)}
		return active
	}
	active = p
	return active
}

func newProvider(cfg Config) (*Provider, error) {
	ctx := context.Background()

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(stripProtocol(cfg.OTLPEndpoint)),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRatio)
	if cfg.SamplingRatio >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Provider{tp: tp, tracer: tp.Tracer(cfg.ServiceName)}, nil
}

// Shutdown flushes and stops the tracer provider, bounded to 5 seconds.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}

func stripProtocol(endpoint string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(endpoint) >= len(prefix) && endpoint[:len(prefix)] == prefix {
			return endpoint[len(prefix):]
		}
	}
	return endpoint
}
