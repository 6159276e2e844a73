// Package httpengine is an asynchronous HTTP client request engine: a
// fluent RequestBuilder that accumulates configuration, a requestCore
// state machine that drives attempts through net/http on a dedicated
// reactor goroutine, exponential-backoff retries, and per-request
// statistics and distributed-tracing metadata.
//
// Quick start:
//
//	client := httpengine.New(
//	    httpengine.WithBaseURL("https://api.example.com"),
//	    httpengine.WithServiceName("payments"),
//	)
//	resp, err := client.Request("CreatePayment").
//	    Retry(3, true).
//	    Header("Idempotency-Key", key).
//	    Post(ctx, "/payments", body)
package httpengine

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/httpengine/breaker"
	"github.com/kroma-labs/httpengine/reactor"
	"github.com/kroma-labs/httpengine/stats"
	"github.com/kroma-labs/httpengine/throttle"
	"github.com/kroma-labs/httpengine/tracing"
	"github.com/kroma-labs/httpengine/transfer"
)

// Client is the factory for RequestBuilders. One Client owns a single
// dedicated reactor goroutine shared by every Request it submits.
type Client struct {
	reactor *reactor.Reactor
	clock   *reactor.Clock

	baseURL        string
	defaultHeaders [][2]string

	tracer       *tracing.Tracer
	stats        *stats.Registry
	limiter      *throttle.Limiter
	keyedLimiter *throttle.Keyed

	breakerCfg     breaker.Config
	breakerEnabled bool
	breakerMu      sync.Mutex
	breakers       map[string]*breaker.Breaker

	baseTransport     *http.Transport
	logger            zerolog.Logger
	reactorQueueDepth int
}

// Option configures a Client using the functional-options pattern.
type Option func(*Client)

// WithBaseURL sets the base URL every RequestBuilder's relative path is
// resolved against.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithServiceName sets the OpenTelemetry instrumentation scope name used
// to obtain the default tracer.
func WithServiceName(name string) Option {
	return func(c *Client) { c.tracer = tracing.NewTracer(otel.Tracer(name)) }
}

// WithTracer sets an explicit OpenTelemetry tracer, overriding
// WithServiceName.
func WithTracer(t oteltrace.Tracer) Option {
	return func(c *Client) { c.tracer = tracing.NewTracer(t) }
}

// WithStatsRegistry sets the Prometheus-backed registry per-request stats
// sinks are drawn from. Without this option, stats calls are no-ops.
func WithStatsRegistry(r *stats.Registry) Option {
	return func(c *Client) { c.stats = r }
}

// WithRateLimit enables client-side rate limiting ahead of attempt
// submission, shared across every Request from this Client.
func WithRateLimit(cfg throttle.Config) Option {
	return func(c *Client) { c.limiter = throttle.New(cfg) }
}

// WithKeyedRateLimit enables per-destination rate limiting: each distinct
// key passed to RequestBuilder.RateLimitKey gets its own token bucket. A
// keyed Request is gated by its key's bucket in addition to the
// client-wide one from WithRateLimit, if that is also set.
func WithKeyedRateLimit(cfg throttle.Config) Option {
	return func(c *Client) { c.keyedLimiter = throttle.NewKeyed(cfg) }
}

// WithBreaker enables a per-destination-host circuit breaker gating
// attempt submission before any attempt is made.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *Client) {
		c.breakerEnabled = true
		c.breakerCfg = cfg
	}
}

// WithDefaultHeader adds a header applied to every Request from this
// Client.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) { c.defaultHeaders = append(c.defaultHeaders, [2]string{key, value}) }
}

// WithTransport seeds the base *http.Transport Handles are derived from;
// connection pooling and DNS strategy remain fully delegated to it.
func WithTransport(t *http.Transport) Option {
	return func(c *Client) { c.baseTransport = t }
}

// WithLogger sets the zerolog.Logger used for debug tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithReactorQueueDepth sets the buffered depth of the reactor's work
// queue. Defaults to 256.
func WithReactorQueueDepth(depth int) Option {
	return func(c *Client) { c.reactorQueueDepth = depth }
}

// New builds a Client with production defaults: a shared reactor
// goroutine, no stats sink (until WithStatsRegistry is set), a no-op
// rate limiter, and circuit breaking disabled.
func New(opts ...Option) *Client {
	c := &Client{
		breakers:          make(map[string]*breaker.Breaker),
		logger:            zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger(),
		reactorQueueDepth: 256,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reactor = reactor.New(c.reactorQueueDepth)
	c.clock = reactor.NewClock(c.reactor)
	return c
}

// Request creates a new RequestBuilder for the given operation name, used
// for span naming, debug logging, and metrics labelling.
func (c *Client) Request(operationName string) *RequestBuilder {
	return newRequestBuilder(c, operationName)
}

// Close stops the Client's reactor goroutine, draining any posted work
// first. Pending Requests' futures will not resolve after Close unless
// they already had a completion queued.
func (c *Client) Close() {
	c.reactor.Stop()
}

func (c *Client) newHandle() transfer.Handle {
	return transfer.NewNetHTTPHandle(c.baseTransport)
}

func (c *Client) breakerFor(host string) *breaker.Breaker {
	if !c.breakerEnabled {
		return nil
	}
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}
	b := breaker.New(host, c.breakerCfg)
	c.breakers[host] = b
	return b
}

func (c *Client) statsSink(operation string) stats.Sink {
	if c.stats == nil {
		return stats.NoopSink{}
	}
	return c.stats.Sink(operation)
}

func newRequestID() string {
	return uuid.New().String()
}
