// Package breaker adds a per-host circuit breaker in front of requestCore's
// attempt submission, so a destination failing persistently stops consuming
// retry budget on every Request directed at it.
package breaker

import (
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// ErrOpen is returned by Guard when the breaker is open and no attempt was
// made, matching gobreaker.ErrOpenState but scoped to this package so
// callers don't need to import gobreaker directly.
var ErrOpen = errors.New("httpengine/breaker: circuit open")

// errSoftFailure is an internal sentinel used to make a classified "bad
// response" (e.g. a 5xx) count against the breaker's failure ratio without
// leaking a synthetic error out of Guard: a 5xx is a valid Response at the
// calling layer, not a transport error.
var errSoftFailure = errors.New("httpengine/breaker: classified failure")

// Classifier decides whether an attempt's outcome should count against the
// breaker's failure ratio. Operates on (status, err) rather than
// (*http.Response, error) since the caller only has a status code once the
// attempt is classified.
type Classifier func(status int, err error) bool

// Config is the breaker's tunable configuration.
type Config struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	FailureThreshold    uint32
	FailureRatio        float64
	ConsecutiveFailures uint32
	Store               gobreaker.SharedDataStore
	Classifier          Classifier
	OnStateChange       func(name string, from, to gobreaker.State)
}

// DefaultConfig returns conservative defaults: fail fast, recover fast.
func DefaultConfig() Config {
	return Config{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultClassifier,
	}
}

// DistributedConfig returns DefaultConfig with a Redis-backed
// SharedDataStore so multiple instances share trip state, mirroring the
// teacher's DistributedBreakerConfig.
func DistributedConfig(client redis.UniversalClient) Config {
	cfg := DefaultConfig()
	cfg.Store = gobreakerredis.NewStoreFromClient(client)
	return cfg
}

// DefaultClassifier treats network errors and 5xx responses as failures,
// ignoring 429 so rate-limit responses don't trip the breaker — retry
// backoff is the right tool for those, not circuit breaking.
func DefaultClassifier(status int, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}
	return status >= 500
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT)
}

// executor is satisfied by both *gobreaker.CircuitBreaker[int] and
// *gobreaker.DistributedCircuitBreaker[int], whose Execute signatures match
// even though their State() signatures don't.
type executor interface {
	Execute(req func() (int, error)) (int, error)
}

// Breaker gates Requests to one destination.
type Breaker struct {
	cb         executor
	state      func() gobreaker.State
	classifier Classifier
}

// New builds a Breaker named name (typically the destination host).
func New(name string, cfg Config) *Breaker {
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = DefaultClassifier
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.FailureThreshold {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: cfg.OnStateChange,
	}
	var cb executor
	var state func() gobreaker.State
	if cfg.Store != nil {
		dcb, err := gobreaker.NewDistributedCircuitBreaker[int](cfg.Store, settings)
		if err != nil {
			panic(err)
		}
		cb = dcb
		state = func() gobreaker.State {
			s, _ := dcb.State()
			return s
		}
	} else {
		scb := gobreaker.NewCircuitBreaker[int](settings)
		cb = scb
		state = scb.State
	}
	return &Breaker{cb: cb, state: state, classifier: classifier}
}

// Guard runs attempt through the breaker. If the breaker is open, attempt
// is never called and Guard returns ErrOpen — the gate callers consult
// before submitting a single byte on the wire. If attempt runs, its
// (status, err) outcome is classified and fed back into the breaker's
// failure count, but a classified-failure status code is still returned to
// the caller as a normal outcome, not as an error: a 5xx is a Response,
// not a transport error.
func (b *Breaker) Guard(attempt func() (int, error)) (int, error) {
	// unclassifiedErr carries an attempt error the classifier does not count
	// as a failure: the breaker sees success, the caller still gets the error.
	var unclassifiedErr error
	status, err := b.cb.Execute(func() (int, error) {
		s, aerr := attempt()
		if aerr != nil {
			if !b.classifier(s, aerr) {
				unclassifiedErr = aerr
				return s, nil
			}
			return s, aerr
		}
		if b.classifier(s, nil) {
			return s, errSoftFailure
		}
		return s, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, ErrOpen
		}
		if errors.Is(err, errSoftFailure) {
			return status, nil
		}
		return status, err
	}
	if unclassifiedErr != nil {
		return status, unclassifiedErr
	}
	return status, nil
}

// State reports the breaker's current state (for diagnostics/metrics).
func (b *Breaker) State() gobreaker.State {
	return b.state()
}
