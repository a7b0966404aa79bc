// Package telemetry configures OpenTelemetry tracing. Runs, analyzer branches,
// and the fix pass each open a span on the tracer returned by [Tracer].
package telemetry
