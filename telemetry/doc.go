// Package telemetry wires OpenTelemetry tracing and metrics into query synthesis.
//
// Tracing is configured once per process with Setup. Spans are exported to
// an OTLP/gRPC collector when an endpoint is configured, and to a writer
// (stdout by default) otherwise. Metrics are recorded through the global
// otel meter, so they are no-ops until the host process installs a
// MeterProvider.
//
// Everything in this package is safe to call without Setup; spans and
// metrics then go to the otel no-op implementations.
package telemetry
