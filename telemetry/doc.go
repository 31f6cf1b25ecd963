// Package telemetry wires OpenTelemetry tracing and metrics into the
// orchestrator and its workers.
//
// Tracing is opt-in: InitProvider installs an OTLP exporter (grpc or http)
// as the global provider. Without it, GetTracer returns a no-op tracer and
// spans cost nothing.
//
// Metrics keeps a small set of counters. Each counter is recorded both on an
// OpenTelemetry meter and in an in-process atomic, so the health endpoint
// can report them even when no metrics pipeline is configured.
package telemetry
