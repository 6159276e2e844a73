// Package tracing provides distributed-tracing instrumentation for
// outbound requests over OpenTelemetry: span creation, header injection,
// and status tagging.
package tracing

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Header names injected into every traced request.
const (
	HeaderSpanID    = "X-YaSpanId"
	HeaderTraceID   = "X-YaTraceId"
	HeaderRequestID = "X-YaRequestId"
)

// syntheticTransportStatus is the synthetic status code the span is tagged
// with on a transport error, since no real HTTP status was ever received.
const syntheticTransportStatus = 599

// Span wraps a 64-bit span-id, a trace-id, and a link-id (request-id)
// injected as headers, plus tag setting for
// http.url/http.status_code/error.
type Span struct {
	otelSpan trace.Span
	spanID   string
	traceID  string
	linkID   string
}

// Tracer creates Spans detached from any ambient context, matching the
// contract's "must be detached from any ambient task-local context at
// submission so that its lifetime is independent of the awaiter."
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry trace.Tracer, typically obtained from
// otel.Tracer("github.com/kroma-labs/httpengine").
func NewTracer(t trace.Tracer) *Tracer {
	return &Tracer{tracer: t}
}

// Start opens a new Span for operationName, detached from ctx: the
// returned Span carries its own otel span whose lifetime the caller
// controls explicitly via Release, rather than being tied to ctx's
// cancellation the way a normal nested span would be.
func (t *Tracer) Start(ctx context.Context, operationName, requestID string) (*Span, context.Context) {
	detached := trace.ContextWithSpan(context.Background(), trace.SpanFromContext(ctx))
	spanCtx, otelSpan := t.tracer.Start(detached, operationName)

	sc := trace.SpanContextFromContext(spanCtx)
	s := &Span{
		otelSpan: otelSpan,
		spanID:   sc.SpanID().String(),
		traceID:  sc.TraceID().String(),
		linkID:   requestID,
	}
	return s, spanCtx
}

// InjectHeaders writes the three propagation headers into add, matching
// the contract's header names exactly.
func (s *Span) InjectHeaders(add func(key, value string)) {
	add(HeaderSpanID, s.spanID)
	add(HeaderTraceID, s.traceID)
	add(HeaderRequestID, s.linkID)
}

// SetURL tags the span with the effective URL, matching http.url.
func (s *Span) SetURL(url string) {
	s.otelSpan.SetAttributes(attribute.String("http.url", url))
}

// SetStatusCode tags the span with the final status code and marks it as
// an error for codes >= 400, which includes the syntheticTransportStatus
// that SetTransportError passes in.
func (s *Span) SetStatusCode(code int) {
	s.otelSpan.SetAttributes(attribute.String("http.status_code", strconv.Itoa(code)))
	if code >= 400 || code == syntheticTransportStatus {
		s.otelSpan.SetAttributes(attribute.Bool("error", true))
		s.otelSpan.SetStatus(codes.Error, "")
	}
}

// SetTransportError tags the span with the synthetic transport-error
// status and records the underlying error.
func (s *Span) SetTransportError(err error) {
	s.otelSpan.RecordError(err)
	s.SetStatusCode(syntheticTransportStatus)
}

// Release ends the underlying otel span. Must be called exactly once, at
// terminal resolution of the Request it was opened for.
func (s *Span) Release() {
	s.otelSpan.End()
}
