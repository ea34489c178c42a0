// Package telemetry integrates pipeline events with Clue logging, OTEL
// tracing, and Prometheus metrics, per §4.10. The three interfaces below are
// intentionally small so gates and runtime code can be tested against a
// no-op or recording stub without depending on the real exporters.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the pipeline.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for pipeline
// instrumentation (gate durations, block counts, cache hit rate, breaker
// state).
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so pipeline code stays agnostic of the
// underlying OTEL provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// GateTelemetry captures the observability metadata collected for one gate
// evaluation, mirroring §4.8's audit Record but intended for the metrics/
// tracing path rather than the durable trail.
type GateTelemetry struct {
	Gate       string
	Tool       string
	DurationMs int64
	Blocked    bool
	CacheHit   bool
	Extra      map[string]any
}
