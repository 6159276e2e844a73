// Package reactor implements the single-goroutine event loop that the
// request engine's state machine mutates on. Everything that touches a
// Request's retry state, response pointer, or PUT cursor runs as a closure
// posted to a Reactor, never directly on a caller's goroutine.
package reactor

import (
	"context"
	"sync"
	"time"
)

// Reactor drains a queue of closures on one dedicated goroutine, mirroring
// the reactor thread that the original transfer engine ran its callbacks
// on. Posting from any goroutine is safe; running a posted function always
// happens on the same goroutine as every other posted function.
type Reactor struct {
	work    chan func()
	closeMu sync.Mutex
	closed  bool
	done    chan struct{}
}

// New starts a Reactor with the given work-queue depth. A depth of 0 makes
// Post synchronous with the queue (but still asynchronous with the caller).
func New(queueDepth int) *Reactor {
	r := &Reactor{
		work: make(chan func(), queueDepth),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Reactor) loop() {
	defer close(r.done)
	for fn := range r.work {
		fn()
	}
}

// Post schedules fn to run on the reactor goroutine. Post never blocks the
// caller waiting for fn to run; it only blocks if the queue is full.
// Posting after Stop is a silent no-op, matching "cancellation after
// resolution is a no-op" at the reactor boundary.
func (r *Reactor) Post(fn func()) {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closeMu.Unlock()
	r.work <- fn
}

// Stop closes the work queue and waits for the goroutine to drain it.
func (r *Reactor) Stop() {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closed = true
	close(r.work)
	r.closeMu.Unlock()
	<-r.done
}

// Clock schedules single-shot timers whose fired callback is re-posted onto
// a Reactor before running, so a timer firing on Go's runtime timer
// goroutine still only ever mutates state on the reactor goroutine. This is
// the Go encoding of the ReactorClock / SingleshotAsync external contract.
type Clock struct {
	r *Reactor
}

// NewClock binds a Clock to the given Reactor.
func NewClock(r *Reactor) *Clock {
	return &Clock{r: r}
}

// Timer is a cancellable single-shot timer created by SingleshotAsync.
type Timer struct {
	t    *time.Timer
	once sync.Once
	done chan struct{}
	r    *Reactor
	h    func(error)
}

// Stop cancels the timer if it has not yet fired, and prevents a
// fire-in-flight race from delivering handler(nil) after Stop was called.
// Idempotent.
func (t *Timer) Stop() {
	t.t.Stop()
	t.once.Do(func() { close(t.done) })
}

// fire claims the timer's single dispatch and posts handler(err) onto the
// reactor, so whichever of "timer elapsed" or "ctx cancelled" wins the race
// is the only one that runs, regardless of which goroutine observed it.
func (t *Timer) fire(err error) {
	t.once.Do(func() {
		close(t.done)
		t.r.Post(func() { t.h(err) })
	})
}

// SingleshotAsync arms a timer that, after delay, posts handler(nil) onto
// the bound Reactor. If ctx is cancelled before the timer fires, the timer
// is stopped and handler(ctx.Err()) is posted instead, so the decision
// logic downstream always runs on the reactor goroutine regardless of which
// goroutine observed the cancellation.
func (c *Clock) SingleshotAsync(ctx context.Context, delay time.Duration, handler func(error)) *Timer {
	timer := &Timer{r: c.r, h: handler, done: make(chan struct{})}
	timer.t = time.AfterFunc(delay, func() { timer.fire(nil) })
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				timer.t.Stop()
				timer.fire(ctx.Err())
			case <-timer.done:
			}
		}()
	}
	return timer
}
