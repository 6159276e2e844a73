package reactor

import (
	"context"
	"sync"
)

// Future is a single-producer/single-consumer result cell. Exactly one of
// Resolve or Reject may take effect; later calls are no-ops. This backs the
// engine's "a Request's Promise is resolved exactly once" invariant without
// a mutex on the hot path once resolved: after resolution, Get only ever
// reads closed-channel state.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture creates an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve fulfils the future with a value. Idempotent: only the first of
// Resolve/Reject across the Future's lifetime has any effect.
func (f *Future[T]) Resolve(v T) {
	f.once.Do(func() {
		f.value = v
		close(f.done)
	})
}

// Reject fulfils the future with an error. Idempotent: only the first of
// Resolve/Reject across the Future's lifetime has any effect.
func (f *Future[T]) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done reports the channel that closes exactly once, at resolution.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the future resolves or ctx is done, whichever comes
// first. A ctx-deadline return does not itself resolve the future: the
// underlying attempt may still complete later, and its result is simply
// discarded by a caller that already gave up, matching "the aggregate
// deadline wrapper discards a late underlying result."
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the resolved value/error without blocking, and reports
// whether the future had already resolved.
func (f *Future[T]) TryGet() (T, error, bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
