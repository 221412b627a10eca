// Package tracing provides a lightweight, dependency-free span tracer used
// for in-process correlation ids threaded through slog output. It does not
// use OpenTelemetry and exports nothing; internal/telemetry/metrics exposes
// Prometheus metrics only.
// Adapted verbatim in shape from the teacher's
// engine/internal/telemetry/tracing/tracing.go simpleTracer/simpleSpan,
// retextured to the orchestrator's stage/pipeline span names.
package tracing

import (
	randcrypto "crypto/rand"
	"context"
	"encoding/hex"
	"sync"
	"time"
)

// Span is one traced operation (a stage execution, a pipeline run, a health
// probe).
type Span interface {
	End()
	SetAttribute(key string, value any)
	Context() SpanContext
	IsEnded() bool
}

// SpanContext carries correlation ids plus timing.
type SpanContext struct {
	TraceID, SpanID, ParentSpanID string
	Start, End                   time.Time
}

// Tracer starts spans, threading parent context through child calls.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

type noopTracer struct{}
type noopSpan struct{}

func (noopTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, noopSpan{}
}
func (noopSpan) End()                          {}
func (noopSpan) SetAttribute(key string, value any) {}
func (noopSpan) Context() SpanContext          { return SpanContext{} }
func (noopSpan) IsEnded() bool                 { return true }

// NewTracer returns a correlation-id tracer, or a no-op if disabled.
func NewTracer(enabled bool) Tracer {
	if !enabled {
		return noopTracer{}
	}
	return simpleTracer{}
}

type simpleTracer struct{}

type simpleSpan struct {
	ctx   SpanContext
	mu    sync.Mutex
	ended bool
	attrs map[string]any
}

func (simpleTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	parent := SpanFromContext(ctx)
	traceID := parent.ctx.TraceID
	if traceID == "" {
		traceID = newID(16)
	}
	sp := &simpleSpan{
		ctx:   SpanContext{TraceID: traceID, SpanID: newID(8), ParentSpanID: parent.ctx.SpanID, Start: time.Now()},
		attrs: make(map[string]any),
	}
	return context.WithValue(ctx, spanKey{}, sp), sp
}

func (s *simpleSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ctx.End = time.Now()
		s.ended = true
	}
}

func (s *simpleSpan) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attrs != nil {
		s.attrs[key] = value
	}
}

func (s *simpleSpan) Context() SpanContext { return s.ctx }

func (s *simpleSpan) IsEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

type spanKey struct{}

// SpanFromContext returns the active span, or an empty one if none is set.
func SpanFromContext(ctx context.Context) *simpleSpan {
	if ctx == nil {
		return &simpleSpan{}
	}
	if sp, ok := ctx.Value(spanKey{}).(*simpleSpan); ok {
		return sp
	}
	return &simpleSpan{}
}

// ExtractIDs returns the trace/span id pair correlated on ctx, for log
// attribution.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sp := SpanFromContext(ctx)
	return sp.ctx.TraceID, sp.ctx.SpanID
}

func newID(n int) string {
	b := make([]byte, n)
	_, _ = randcrypto.Read(b)
	return hex.EncodeToString(b)
}
