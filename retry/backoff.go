package retry

import (
	"math/rand"
	"time"
)

// ebBaseTime is the base unit of the exponential backoff.
const ebBaseTime = 25 * time.Millisecond

// maxShift caps the exponential growth window at 2^5.
const maxShift = 5

// delayFor computes delay(i) = ebBaseTime * (rand[0, 2^min(i-1,5)] + 1),
// where i (attempt) is the number of attempts already used (>=1). This is
// a fixed jittered-exponential formula, preserved verbatim rather than
// replaced by a generic exponential curve.
func delayFor(attempt int, rnd *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxShift {
		shift = maxShift
	}
	window := 1 << shift
	n := rnd.Intn(window+1) + 1
	return ebBaseTime * time.Duration(n)
}

// EBJitterBackOff implements github.com/cenkalti/backoff/v5's BackOff
// interface using the exact formula above, so the retry loop can still be
// driven by backoff.Retry, without losing the specific jitter shape
// above.
type EBJitterBackOff struct {
	attempt int
	rnd     *rand.Rand
}

// NewEBJitterBackOff returns a backoff starting at attempt 1.
func NewEBJitterBackOff() *EBJitterBackOff {
	return &EBJitterBackOff{
		attempt: 0,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextBackOff advances the attempt counter and returns the delay before
// the next attempt.
func (b *EBJitterBackOff) NextBackOff() time.Duration {
	b.attempt++
	return delayFor(b.attempt, b.rnd)
}

// Reset rewinds the attempt counter, as required between independent
// Requests sharing one backoff instance.
func (b *EBJitterBackOff) Reset() {
	b.attempt = 0
}

// MaxAttemptDelay returns the worst-case delay before attempt i+1, used by
// AggregateTimeout to budget for the entire retry sequence.
func MaxAttemptDelay(attempt int) time.Duration {
	shift := attempt - 1
	if shift > maxShift {
		shift = maxShift
	}
	window := 1 << shift
	return ebBaseTime * time.Duration(window+1)
}
