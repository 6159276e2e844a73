// Package throttle adds client-side rate limiting in front of attempt
// submission, either shared across a Client or keyed per destination.
package throttle

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrLimited is returned by Allow when WaitOnLimit is false and no token
// was immediately available.
var ErrLimited = errors.New("httpengine/throttle: rate limit exceeded")

// Config configures a Limiter.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	WaitOnLimit       bool
}

// DefaultConfig returns 100 req/s, burst of 10, waiting for a token rather
// than failing fast.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 100, Burst: 10, WaitOnLimit: true}
}

// Limiter gates submission of new attempts, consulted once per Request
// before the first attempt (not once per retry attempt — retries are
// already rate-limited implicitly by backoff).
type Limiter struct {
	limiter *rate.Limiter
	wait    bool
}

// New builds a Limiter from cfg. A non-positive RequestsPerSecond disables
// limiting: Allow always succeeds immediately.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		wait:    cfg.WaitOnLimit,
	}
}

// Allow blocks for a token (respecting ctx) when the Limiter waits on
// limit, or returns ErrLimited immediately when it fails fast. A nil
// Limiter always allows.
func (l *Limiter) Allow(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if l.wait {
		return l.limiter.Wait(ctx)
	}
	if !l.limiter.Allow() {
		return ErrLimited
	}
	return nil
}

// Keyed manages one Limiter per key: each distinct destination/operation
// gets its own token bucket instead of sharing one client-wide bucket.
type Keyed struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	cfg      Config
}

// NewKeyed builds a Keyed limiter where every key created on demand shares
// cfg's rate/burst/wait settings.
func NewKeyed(cfg Config) *Keyed {
	return &Keyed{limiters: make(map[string]*Limiter), cfg: cfg}
}

// Allow gates key, creating its Limiter on first use.
func (k *Keyed) Allow(ctx context.Context, key string) error {
	if k == nil {
		return nil
	}
	k.mu.RLock()
	l, ok := k.limiters[key]
	k.mu.RUnlock()
	if !ok {
		k.mu.Lock()
		l, ok = k.limiters[key]
		if !ok {
			l = New(k.cfg)
			k.limiters[key] = l
		}
		k.mu.Unlock()
	}
	return l.Allow(ctx)
}
