package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracerStartInjectsHeaders(t *testing.T) {
	tr := NewTracer(otel.Tracer("httpengine-test"))
	span, spanCtx := tr.Start(context.Background(), "GetUser", "req-123")
	require.NotNil(t, span)
	require.NotNil(t, spanCtx)

	headers := map[string]string{}
	span.InjectHeaders(func(key, value string) { headers[key] = value })

	assert.Contains(t, headers, HeaderSpanID)
	assert.Contains(t, headers, HeaderTraceID)
	assert.Equal(t, "req-123", headers[HeaderRequestID])

	span.Release()
}

func TestTracerStartIsDetachedFromAmbientContext(t *testing.T) {
	tr := NewTracer(otel.Tracer("httpengine-test"))

	parentCtx, cancel := context.WithCancel(context.Background())
	_, spanCtx := tr.Start(parentCtx, "op", "req-1")
	cancel()

	// The span's own context must not inherit the parent's cancellation:
	// it is rooted in a fresh context.Background(), not parentCtx.
	select {
	case <-spanCtx.Done():
		t.Fatal("span context was derived from the ambient cancellable context")
	default:
	}
}

func TestSetStatusCodeTagsErrorAboveBadThreshold(t *testing.T) {
	tr := NewTracer(otel.Tracer("httpengine-test"))
	span, _ := tr.Start(context.Background(), "op", "req-1")
	assert.NotPanics(t, func() {
		span.SetStatusCode(503)
		span.Release()
	})
}

func TestSetTransportErrorUsesSyntheticStatus(t *testing.T) {
	tr := NewTracer(otel.Tracer("httpengine-test"))
	span, _ := tr.Start(context.Background(), "op", "req-1")
	assert.NotPanics(t, func() {
		span.SetTransportError(errors.New("connection refused"))
		span.Release()
	})
}
