package httpengine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kroma-labs/httpengine/breaker"
	"github.com/kroma-labs/httpengine/reactor"
	"github.com/kroma-labs/httpengine/retry"
	"github.com/kroma-labs/httpengine/stats"
	"github.com/kroma-labs/httpengine/tracing"
	"github.com/kroma-labs/httpengine/transfer"
)

// requestCore drives one Request through its lifecycle: Configuring →
// InFlight → (Backoff → InFlight)* → Resolved. Every field below is
// mutated only inside closures run on reactor, so the whole state machine
// has a single mutator goroutine regardless of which goroutine calls in.
type requestCore struct {
	reactor *reactor.Reactor
	clock   *reactor.Clock
	handle  transfer.Handle
	breaker *breaker.Breaker
	stats   stats.Sink
	tracer  *tracing.Tracer
	logger  zerolog.Logger

	operationName string

	cfg       transfer.Config
	retry     *retry.State
	putFeeder *transfer.PutBodyFeeder

	future *reactor.Future[*Response]
	span   *tracing.Span

	ctx        context.Context
	cancelFunc context.CancelFunc
	timer      *reactor.Timer

	// lastHeaders/lastBody hold the most recent attempt's sinks, populated
	// by performRequest's completion closure before handler runs, so
	// onCompleted can build the surfaced Response without threading it
	// through every closure argument. Only the final attempt's values are
	// ever read, matching "only the final attempt's Response is surfaced."
	lastHeaders *transfer.HeaderMap
	lastBody    *bytes.Buffer

	resolveOnce sync.Once
	resolved    bool
}

// asyncPerform allocates the span, injects tracing headers, installs the
// header callback, requests gzip/deflate, starts the stats timer, and
// submits attempt #1. Returns immediately with the future; all further
// work happens on the reactor.
func (c *requestCore) asyncPerform(ctx context.Context, operationName, requestID string) *reactor.Future[*Response] {
	c.future = reactor.NewFuture[*Response]()

	attemptCtx, cancel := context.WithCancel(ctx)
	c.ctx = attemptCtx
	c.cancelFunc = cancel

	if c.tracer != nil {
		span, _ := c.tracer.Start(ctx, operationName, requestID)
		c.span = span
		span.InjectHeaders(func(key, value string) {
			c.cfg.Headers = append(c.cfg.Headers, [2]string{key, value})
		})
		span.SetURL(c.cfg.URL)
	}
	c.cfg.AcceptEncoding = "gzip,deflate"

	c.reactor.Post(func() {
		c.performRequest(c.onRetry)
	})

	go func() {
		select {
		case <-ctx.Done():
			c.Cancel()
		case <-c.future.Done():
		}
	}()

	return c.future
}

// performRequest creates a fresh Response sink, resets the PUT cursor if
// present, and submits the transfer with handler as the completion
// callback.
func (c *requestCore) performRequest(handler func(status int, err error)) {
	if c.putFeeder != nil {
		c.putFeeder.Reset()
	}

	headerSink := transfer.NewHeaderMap()
	bodySink := &bytes.Buffer{}
	attemptCfg := c.cfg
	attemptCfg.HeaderSink = headerSink
	attemptCfg.BodySink = bodySink

	c.logger.Debug().Str("operation", c.operationName).Msg(curlCommand(&attemptCfg))

	if err := c.handle.Configure(&attemptCfg); err != nil {
		// Callback registration failure is fatal: resolve immediately rather
		// than feeding it through the retry decision.
		c.reactor.Post(func() { c.onCompleted(0, &TransportError{Cause: err}) })
		return
	}

	c.stats.Start()

	doAttempt := func() (int, error) {
		ch := make(chan error, 1)
		c.handle.AsyncPerform(c.ctx, func(err error) { ch <- err })
		err := <-ch
		return c.handle.ResponseCode(), err
	}

	go func() {
		var status int
		var err error
		if c.breaker != nil {
			status, err = c.breaker.Guard(doAttempt)
			if errors.Is(err, breaker.ErrOpen) {
				err = &TransportError{Cause: err}
			}
		} else {
			status, err = doAttempt()
		}

		ttfb := c.handle.TimeToStart()

		c.reactor.Post(func() {
			c.stats.StoreTimeToStart(ttfb)
			if err != nil {
				c.stats.FinishEc(err)
			} else {
				c.stats.FinishOk(status)
			}
			c.lastHeaders = headerSink
			c.lastBody = bodySink
			handler(status, err)
		})
	}()
}

// onRetry applies the retry decision table to one attempt's outcome.
func (c *requestCore) onRetry(status int, err error) {
	if c.resolved {
		return
	}
	if err != nil && retry.IsCancellation(err) {
		c.onCompleted(status, &CancelledError{})
		return
	}
	if err != nil && errors.Is(err, breaker.ErrOpen) {
		// No attempt was actually made; resolve immediately rather than
		// consuming a retry attempt against a breaker that is already open.
		c.onCompleted(status, err)
		return
	}

	outcome, delay := c.retry.Decide(err, status)
	if outcome == retry.Finish {
		c.onCompleted(status, err)
		return
	}

	c.timer = c.clock.SingleshotAsync(c.ctx, delay, func(timerErr error) {
		if c.resolved {
			return
		}
		if timerErr != nil {
			c.onCompleted(0, &CancelledError{})
			return
		}
		c.performRequest(c.onRetry)
	})
}

// onCompleted finalizes a Request: final stats were already recorded by
// performRequest's completion closure, so here we tag the span, resolve
// the future, and release the span.
func (c *requestCore) onCompleted(status int, err error) {
	if c.resolved {
		return
	}
	c.resolved = true

	if c.span != nil {
		if err != nil {
			c.span.SetTransportError(err)
		} else {
			c.span.SetStatusCode(status)
		}
		c.span.Release()
	}

	c.resolveOnce.Do(func() {
		if err != nil {
			c.future.Reject(classifyTerminalError(err))
			return
		}
		c.future.Resolve(&Response{
			StatusCode: status,
			Header:     c.lastHeaders,
			Body:       c.lastBody.Bytes(),
		})
	})
}

// Cancel is idempotent and non-blocking: it routes through the reactor so
// the decision that cancellation happened is made on the single mutator
// goroutine regardless of which goroutine called Cancel.
func (c *requestCore) Cancel() {
	c.reactor.Post(func() {
		if c.resolved {
			return
		}
		c.handle.Cancel()
		if c.timer != nil {
			c.timer.Stop()
		}
		if c.cancelFunc != nil {
			c.cancelFunc()
		}
		c.onCompleted(0, &CancelledError{})
	})
}

// withAggregateDeadline wraps inner's future with an overall timeout
// computed by retry.AggregateTimeout. If the wrapper's timer fires before
// inner resolves, the returned future rejects with TimeoutError and
// inner's eventual result — if it ever arrives — is simply never read: the
// underlying transfer may still complete in the background, but nothing
// observes it.
func withAggregateDeadline(inner *reactor.Future[*Response], timeout time.Duration) *reactor.Future[*Response] {
	outer := reactor.NewFuture[*Response]()
	timer := time.NewTimer(timeout)
	go func() {
		select {
		case <-inner.Done():
			timer.Stop()
			v, err, _ := inner.TryGet()
			if err != nil {
				outer.Reject(err)
				return
			}
			outer.Resolve(v)
		case <-timer.C:
			outer.Reject(&TimeoutError{Cause: context.DeadlineExceeded})
		}
	}()
	return outer
}

func classifyTerminalError(err error) error {
	var ce *CancelledError
	if errors.As(err, &ce) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	var toe *TimeoutError
	if errors.As(err, &toe) {
		return err
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	if retry.IsTimeout(err) {
		return &TimeoutError{Cause: err}
	}
	if retry.IsProtocolError(err) {
		return &ProtocolError{Cause: err}
	}
	return &TransportError{Cause: err}
}
