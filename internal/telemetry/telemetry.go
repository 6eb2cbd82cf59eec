// Package telemetry implements an opaque trace(name, attrs) -> scope
// collaborator as a thin wrapper over go.opentelemetry.io/otel/trace.
// Only the narrow scope-handle surface is exercised here; metrics export
// is out of scope.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope name registered with the global
// TracerProvider.
const TracerName = "github.com/cortexai/cortex-engine"

var tracer = otel.Tracer(TracerName)

// Scope is a guaranteed-close acquisition handle around one trace span. Its
// zero value (from a no-op tracer) is safe to End.
type Scope struct {
	span trace.Span
}

// Trace opens a new span named name with the given key/value attribute
// pairs, implementing a "trace(name, attrs) -> scope" contract: scoped
// acquisition with guaranteed close, never raises.
func Trace(ctx context.Context, name string, attrs map[string]string) (context.Context, *Scope) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(kvs...))
	return ctx, &Scope{span: span}
}

// End closes the span. Safe to call on a nil Scope.
func (s *Scope) End() {
	if s == nil || s.span == nil {
		return
	}
	s.span.End()
}

// RecordError attaches err to the span without ending it. Safe on nil.
func (s *Scope) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
}
