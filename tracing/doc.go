// Package tracing wraps OpenTelemetry so callers can open and close spans
// around request submission, decisions, audit writes and execution without
// importing the SDK directly.
package tracing
