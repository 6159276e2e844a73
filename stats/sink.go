// Package stats records per-attempt metrics: Start, StoreTimeToStart,
// FinishOk, FinishEc, backed by Prometheus counters and histograms rather
// than a bare promhttp.Handler wrapper.
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kroma-labs/httpengine/retry"
)

// Sink records the lifecycle of one attempt: Start(), StoreTimeToStart(d),
// FinishOk(status), FinishEc(err). Exactly one of FinishOk/FinishEc is
// called per attempt.
type Sink interface {
	Start()
	StoreTimeToStart(d time.Duration)
	FinishOk(status int)
	FinishEc(err error)
}

// PrometheusSink is a Sink bound to one named destination (the operation
// name passed to Client.Request), recording attempt counts, time-to-start,
// and outcome counters labeled by status/error class.
type PrometheusSink struct {
	destination string

	attempts    *prometheus.CounterVec
	timeToStart *prometheus.HistogramVec
	finishOk    *prometheus.CounterVec
	finishErr   *prometheus.CounterVec
}

// Registry bundles the collectors registered once per Client and hands out
// per-destination Sinks that share them rather than creating fresh
// collectors per call.
type Registry struct {
	attempts    *prometheus.CounterVec
	timeToStart *prometheus.HistogramVec
	finishOk    *prometheus.CounterVec
	finishErr   *prometheus.CounterVec
}

// NewRegistry registers the engine's collectors with reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose them via the process-wide
// /metrics handler.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpengine_request_attempts_total",
			Help: "Number of attempts submitted per destination.",
		}, []string{"destination"}),
		timeToStart: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "httpengine_time_to_start_seconds",
			Help:    "Time to first byte per attempt.",
			Buckets: prometheus.DefBuckets,
		}, []string{"destination"}),
		finishOk: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpengine_finish_ok_total",
			Help: "Attempts that completed with an HTTP response, by status code.",
		}, []string{"destination", "status"}),
		finishErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpengine_finish_error_total",
			Help: "Attempts that completed with a transport error.",
		}, []string{"destination", "error_type"}),
	}
	reg.MustRegister(r.attempts, r.timeToStart, r.finishOk, r.finishErr)
	return r
}

// Sink returns a Sink scoped to destination (typically the operation name).
func (r *Registry) Sink(destination string) Sink {
	return &PrometheusSink{
		destination: destination,
		attempts:    r.attempts,
		timeToStart: r.timeToStart,
		finishOk:    r.finishOk,
		finishErr:   r.finishErr,
	}
}

// Start records the beginning of an attempt.
func (s *PrometheusSink) Start() {
	s.attempts.WithLabelValues(s.destination).Inc()
}

// StoreTimeToStart records time-to-first-byte for the current attempt.
func (s *PrometheusSink) StoreTimeToStart(d time.Duration) {
	s.timeToStart.WithLabelValues(s.destination).Observe(d.Seconds())
}

// FinishOk records a completed attempt that received an HTTP response.
func (s *PrometheusSink) FinishOk(status int) {
	s.finishOk.WithLabelValues(s.destination, statusLabel(status)).Inc()
}

// FinishEc records a completed attempt that failed before a response was
// received.
func (s *PrometheusSink) FinishEc(err error) {
	s.finishErr.WithLabelValues(s.destination, errorLabel(err)).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}

func errorLabel(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case retry.IsCancellation(err):
		return "cancelled"
	case retry.IsTimeout(err):
		return "timeout"
	case retry.IsProtocolError(err):
		return "protocol"
	default:
		return "transport"
	}
}

// NoopSink discards everything. Used as the default when a Client is built
// without WithStatsRegistry.
type NoopSink struct{}

func (NoopSink) Start()                         {}
func (NoopSink) StoreTimeToStart(time.Duration) {}
func (NoopSink) FinishOk(int)                   {}
func (NoopSink) FinishEc(error)                 {}
