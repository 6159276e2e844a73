package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRegistrySinkRecordsAttemptsAndOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	sink := r.Sink("test-destination")

	sink.Start()
	sink.StoreTimeToStart(5 * time.Millisecond)
	sink.FinishOk(200)

	sink.Start()
	sink.FinishEc(context.DeadlineExceeded)

	attempts := counterValue(t, r.attempts, "test-destination")
	require.Equal(t, float64(2), attempts)

	ok := counterValueWithLabel(t, r.finishOk, "test-destination", "2xx")
	require.Equal(t, float64(1), ok)

	errs := counterValueWithLabel(t, r.finishErr, "test-destination", "timeout")
	require.Equal(t, float64(1), errs)
}

func TestNoopSinkDoesNothing(t *testing.T) {
	var s Sink = NoopSink{}
	s.Start()
	s.StoreTimeToStart(time.Second)
	s.FinishOk(200)
	s.FinishEc(errors.New("boom"))
}

func TestStatusLabel(t *testing.T) {
	cases := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 503: "5xx", 0: "unknown"}
	for status, want := range cases {
		if got := statusLabel(status); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", status, got, want)
		}
	}
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, label string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(label).Write(m))
	return m.GetCounter().GetValue()
}

func counterValueWithLabel(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}
