// Package retry implements the retry decision for one in-flight request: a
// pure decision function over (err, status, state), a jittered exponential
// backoff formula, and the transport-error classification the decision
// depends on.
package retry

import (
	"math"
	"time"
)

// badStatusThreshold is the status code at or above which a response is
// treated as retry-worthy.
const badStatusThreshold = 500

// Policy is the immutable retry configuration for one Request.
type Policy struct {
	// AttemptsConfigured is clamped to >= 1 by NewPolicy.
	AttemptsConfigured int
	// OnTransportFailure enables retrying after a transport error.
	OnTransportFailure bool
}

// NewPolicy clamps attemptsConfigured to >= 1: a Request always makes at
// least one attempt.
func NewPolicy(attemptsConfigured int, onTransportFailure bool) Policy {
	if attemptsConfigured < 1 {
		attemptsConfigured = 1
	}
	return Policy{AttemptsConfigured: attemptsConfigured, OnTransportFailure: onTransportFailure}
}

// State is the mutable per-Request retry state. AttemptsUsed starts at 1
// (the first attempt is already "used" once submitted).
type State struct {
	Policy       Policy
	AttemptsUsed int
	backoff      *EBJitterBackOff
}

// NewState returns a State with AttemptsUsed = 1 and a freshly seeded
// backoff generator.
func NewState(p Policy) *State {
	return &State{Policy: p, AttemptsUsed: 1, backoff: NewEBJitterBackOff()}
}

// Outcome is the result of a retry decision.
type Outcome int

const (
	// Finish resolves the Request now, with whatever response/error the
	// attempt produced.
	Finish Outcome = iota
	// Retry schedules another attempt after Delay.
	Retry
)

// Decide applies the three-way retry predicate: finish if (i) no error and
// status < 500, (ii) attempts_used is already
// at the configured maximum, or (iii) it was a transport error and
// on_transport_failure is false. Otherwise, increment AttemptsUsed and
// return a Retry outcome carrying the next backoff delay.
func (s *State) Decide(transportErr error, statusCode int) (Outcome, time.Duration) {
	if transportErr == nil && statusCode < badStatusThreshold {
		return Finish, 0
	}
	if s.AttemptsUsed >= s.Policy.AttemptsConfigured {
		return Finish, 0
	}
	if transportErr != nil && !s.Policy.OnTransportFailure {
		return Finish, 0
	}

	delay := s.backoff.NextBackOff()
	s.AttemptsUsed++
	return Retry, delay
}

// IsBadStatus reports whether statusCode is retry-worthy on its own,
// exposed for callers (e.g. the circuit breaker classifier) that need the
// same threshold RetryPolicy uses.
func IsBadStatus(statusCode int) bool {
	return statusCode >= badStatusThreshold
}

// AggregateTimeout computes the overall deadline for an entire retry
// sequence:
//
//	ceil(perAttempt * 1.1 * attemptsConfigured + sum of worst-case backoff delays)
//
// attemptSlackFactor (1.1) is a fixed budget-slack constant rather than a
// tunable — see DESIGN.md's Open Question decisions.
func AggregateTimeout(perAttempt time.Duration, p Policy) time.Duration {
	const attemptSlackFactor = 1.1

	attemptBudget := float64(perAttempt) * attemptSlackFactor * float64(p.AttemptsConfigured)

	var backoffBudget time.Duration
	for i := 1; i < p.AttemptsConfigured; i++ {
		backoffBudget += MaxAttemptDelay(i)
	}

	total := attemptBudget + float64(backoffBudget)
	return time.Duration(math.Ceil(total))
}
