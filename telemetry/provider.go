package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/itsneelabh/querysynth/core"
)

// TracerName is the instrumentation scope used for every span this module creates.
const TracerName = "github.com/itsneelabh/querysynth"

// Provider owns the process-wide tracer provider installed by Setup.
type Provider struct {
	traceProvider *sdktrace.TracerProvider
	exporter      string
}

// SetupOption customizes Setup.
type SetupOption func(*setupOptions)

type setupOptions struct {
	writer  io.Writer
	version string
}

// WithWriter redirects the stdout exporter. Ignored when an OTLP endpoint is configured.
func WithWriter(w io.Writer) SetupOption {
	return func(o *setupOptions) { o.writer = w }
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(version string) SetupOption {
	return func(o *setupOptions) { o.version = version }
}

// Setup installs a global tracer provider configured from cfg.
// Returns a Provider whose Shutdown flushes pending spans.
func Setup(ctx context.Context, cfg core.TelemetryConfig, opts ...SetupOption) (*Provider, error) {
	o := &setupOptions{writer: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(o)
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(o.version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var (
		exporter sdktrace.SpanExporter
		kind     string
	)
	if cfg.Endpoint != "" {
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(trimScheme(cfg.Endpoint))}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, grpcOpts...)
		kind = "otlp"
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(o.writer), stdouttrace.WithPrettyPrint())
		kind = "stdout"
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", kind, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{traceProvider: tp, exporter: kind}, nil
}

// Exporter returns "otlp" or "stdout".
func (p *Provider) Exporter() string {
	return p.exporter
}

// Shutdown flushes and stops the tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.traceProvider == nil {
		return nil
	}
	return p.traceProvider.Shutdown(ctx)
}

// trimScheme strips http:// or https:// since the gRPC exporter expects host:port.
func trimScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return strings.TrimPrefix(endpoint, "https://")
}
